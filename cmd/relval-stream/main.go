// relval-stream is the AWS Lambda function consuming the DynamoDB streams of
// the relval tables.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jacentio/relval/internal/cli"
)

func main() {
	h, err := cli.NewStreamHandler(context.Background(), os.Getenv("RELVAL_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	lambda.Start(h.HandleChanges)
}
