//go:build e2e

// Package e2e contains end-to-end integration tests using real DynamoDB tables.
// Run with: go test -tags=e2e -v ./e2e/...
//
// AWS credentials and region come from the default chain; set
// RELVAL_E2E_PROFILE to use a named profile and RELVAL_DYNAMODB_ENDPOINT
// to target DynamoDB Local.
package e2e

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"

	"github.com/jacentio/relval/model"
	"github.com/jacentio/relval/relval"
	"github.com/jacentio/relval/store"
	"github.com/jacentio/relval/store/dynamo"
	"github.com/jacentio/relval/store/storetest"
)

// Table names are unique per test run to avoid conflicts
const tablePrefix = "relval-e2e-"

var (
	testID    string
	ddbClient *dynamodb.Client

	tablesMu sync.Mutex
	tables   []string
)

func TestMain(m *testing.M) {
	testID = uuid.New().String()[:8]
	fmt.Printf("Test ID: %s\n", testID)

	ctx := context.Background()
	var opts []func(*config.LoadOptions) error
	if profile := os.Getenv("RELVAL_E2E_PROFILE"); profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		fmt.Printf("Failed to load AWS config: %v\n", err)
		os.Exit(1)
	}
	ddbClient = dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint := os.Getenv("RELVAL_DYNAMODB_ENDPOINT"); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	code := m.Run()

	deleteTables(ctx)
	os.Exit(code)
}

// newBackend returns a backend whose tables are private to name and are
// deleted after the run.
func newBackend(t *testing.T, name string) *dynamo.Backend {
	t.Helper()
	prefix := fmt.Sprintf("%s%s-%s-", tablePrefix, testID, strings.ToLower(name))
	b := dynamo.New(ddbClient, dynamo.Config{CreateTables: true}, store.Config{TablePrefix: prefix})

	tablesMu.Lock()
	tables = append(tables, b.MetaTable())
	for _, info := range append(relval.Infos(), storetest.Info) {
		tables = append(tables, b.TableName(info.Name))
	}
	tablesMu.Unlock()
	return b
}

func deleteTables(ctx context.Context) {
	fmt.Println("Deleting test tables...")
	seen := make(map[string]bool)
	for _, table := range tables {
		if seen[table] {
			continue
		}
		seen[table] = true
		_, err := ddbClient.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(table)})
		if err != nil && !strings.Contains(err.Error(), "ResourceNotFoundException") {
			fmt.Printf("Warning: failed to delete table %s: %v\n", table, err)
		}
	}
}

func TestBackendContract(t *testing.T) {
	n := 0
	storetest.Run(t, func(t *testing.T) store.Backend {
		n++
		return newBackend(t, fmt.Sprintf("contract%d", n))
	})
}

func TestRelvalWorkflow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	sys, err := relval.NewSystem(ctx, newBackend(t, "workflow"), relval.Options{})
	if err != nil {
		t.Fatalf("new system: %v", err)
	}
	sys.Start(ctx)
	defer sys.Close()

	if _, err := sys.Campaigns.Create(ctx, model.Object{"prepid": "Run3", "energy": 13.6, "cmssw_release": "CMSSW_13_0_0"}); err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	if _, err := sys.Subcampaigns.Create(ctx, model.Object{
		"prepid":        "Run3_GEN",
		"campaign":      "Run3",
		"energy":        13.6,
		"cmssw_release": "CMSSW_13_0_1",
		"sequences":     []any{map[string]any{"step": "GEN,SIM"}},
	}); err != nil {
		t.Fatalf("create subcampaign: %v", err)
	}
	ticket, err := sys.Tickets.Create(ctx, model.Object{
		"subcampaign":       "Run3_GEN",
		"processing_string": "E2E",
		"input_datasets":    []any{"/A/B/RAW", "/C/D/RAW"},
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}

	created, err := sys.Tickets.CreateRequests(ctx, ticket["prepid"].(string))
	if err != nil {
		t.Fatalf("create requests: %v", err)
	}
	if len(created) != 2 || created[0] != "Run3_GEN-E2E-00001" {
		t.Fatalf("unexpected requests %v", created)
	}

	page, total, err := sys.Requests.Query(ctx, store.Query{Filter: "dataset=/C/*"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 1 || page[0]["prepid"] != created[1] {
		t.Errorf("expected %s from dataset query, got %d rows", created[1], total)
	}

	if _, err := sys.Requests.Approve(ctx, created[0]); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := sys.Submitter.Submit(ctx, created[0]); err != nil {
		t.Fatalf("submit: %v", err)
	}
	sys.Pool.Stop()

	req, _, err := sys.Requests.Get(ctx, created[0])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if req["status"] != relval.RequestSubmitted {
		t.Errorf("expected %s, got %v", relval.RequestSubmitted, req["status"])
	}

	if err := sys.Campaigns.Delete(ctx, "Run3"); err == nil {
		t.Error("expected campaign delete to be vetoed while referenced")
	}
}
