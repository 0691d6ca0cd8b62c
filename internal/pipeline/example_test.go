package pipeline_test

import (
	"context"
	"fmt"

	"github.com/dvloznov/expense-tracker/internal/pipeline"
)

type memoryFetcher map[string][]byte

func (m memoryFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	data, ok := m[uri]
	if !ok {
		return nil, fmt.Errorf("no object at %s", uri)
	}
	return data, nil
}

type cannedExtractor string

func (c cannedExtractor) ExtractLine(ctx context.Context, image []byte, mimeType string) (string, error) {
	return string(c), nil
}

func ExampleNewReceiptPipeline() {
	fetcher := memoryFetcher{"file:///receipts/lunch.jpg": []byte("jpeg")}
	extractor := cannedExtractor("2024-03-15,25.9,Restaurant ABC,food")

	state := &pipeline.PipelineState{ReceiptURI: "file:///receipts/lunch.jpg", MIMEType: "image/jpeg"}
	if err := pipeline.NewReceiptPipeline(fetcher, extractor).Execute(context.Background(), state); err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println(state.Draft.ToLine())
	// Output: 2024-03-15,25.90,Restaurant ABC,Food
}
