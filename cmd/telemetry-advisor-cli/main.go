// Command telemetry-advisor-cli is the dry-run companion spec.md §6
// describes: it never touches a live pipeline, only a captured Sample
// file and (optionally) a policy document, and reports what the advisor
// would recommend or whether its inputs are valid.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/olekukonko/tablewriter"

	"github.com/grafana/telemetry-advisor/modules/llmclient"
	"github.com/grafana/telemetry-advisor/modules/parser"
	"github.com/grafana/telemetry-advisor/modules/policy"
	"github.com/grafana/telemetry-advisor/pkg/recommendation"
	"github.com/grafana/telemetry-advisor/pkg/signal"
)

var version = "dev"

type cli struct {
	Recommend recommendCmd `cmd:"" help:"Produce recommendations for a captured sample file."`
	Validate  validateCmd  `cmd:"" help:"Validate connectivity to the configured LLM endpoint."`
	Test      testCmd      `cmd:"" help:"Run a built-in smoke-test recommendation cycle against a synthetic sample."`
	Policy    policyCmd    `cmd:"" help:"Policy document utilities."`
	Version   versionCmd   `cmd:"" help:"Print the CLI version."`
}

func main() {
	var c cli
	kctx := kong.Parse(&c, kong.Name("telemetry-advisor-cli"), kong.Description("Dry-run companion for the telemetry advisor."))
	kctx.FatalIfErrorf(kctx.Run())
}

type recommendCmd struct {
	Endpoint   string `help:"LLM chat-completion endpoint." env:"TELEMETRY_ADVISOR_LLM_ENDPOINT"`
	APIKey     string `help:"LLM bearer credential." env:"TELEMETRY_ADVISOR_LLM_API_KEY"`
	Model      string `help:"Model name." default:"gpt-4"`
	Sample     string `help:"Path to a captured Sample JSON file." required:""`
	Policies   string `help:"Path to a policy YAML document." optional:""`
	Output     string `help:"Write the rendered filter-rule YAML here instead of stdout." optional:""`
	MaxSamples int    `help:"Maximum number of samples to process if the input file holds a JSON array." default:"1"`
}

func (c *recommendCmd) Run() error {
	samples, err := loadSamples(c.Sample, c.MaxSamples)
	if err != nil {
		return fmt.Errorf("load sample: %w", err)
	}

	var summaries []string
	if c.Policies != "" {
		mgr, err := policy.Load(policy.Config{PolicyFile: c.Policies}, nil)
		if err != nil {
			return fmt.Errorf("load policies: %w", err)
		}
		summaries = policy.Summaries(mgr.Current())
	}

	client := llmclient.New(llmclient.Config{Endpoint: c.Endpoint, APIKey: c.APIKey, Model: c.Model})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var rendered string
	for _, s := range samples {
		sampleJSON, err := s.ToJSON()
		if err != nil {
			return fmt.Errorf("encode sample: %w", err)
		}
		reply, err := client.Recommend(ctx, sampleJSON, summaries)
		if err != nil {
			return fmt.Errorf("recommend: %w", err)
		}
		parsed, err := parser.Parse(reply)
		if err != nil {
			return fmt.Errorf("parse reply: %w", err)
		}
		printRecommendations(parsed.Recommendations)
		rendered += parser.RenderYAML(parsed.Recommendations)
	}

	if c.Output != "" {
		return os.WriteFile(c.Output, []byte(rendered), 0o644)
	}
	fmt.Print(rendered)
	return nil
}

func printRecommendations(recs []recommendation.Recommendation) {
	t := tablewriter.NewWriter(os.Stdout)
	t.Header([]string{"id", "type", "priority", "description", "savings"})
	for _, r := range recs {
		_ = t.Append([]string{r.ID, string(r.Type), string(r.Priority), r.Description, r.EstimatedSavings})
	}
	t.Render()
}

type validateCmd struct {
	Endpoint string `help:"LLM chat-completion endpoint." env:"TELEMETRY_ADVISOR_LLM_ENDPOINT" required:""`
	APIKey   string `help:"LLM bearer credential." env:"TELEMETRY_ADVISOR_LLM_API_KEY"`
}

func (c *validateCmd) Run() error {
	client := llmclient.New(llmclient.Config{Endpoint: c.Endpoint, APIKey: c.APIKey})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.ValidateConnection(ctx); err != nil {
		return fmt.Errorf("llm endpoint unreachable: %w", err)
	}
	fmt.Println("ok: llm endpoint reachable")
	return nil
}

type testCmd struct {
	Endpoint string `help:"LLM chat-completion endpoint." env:"TELEMETRY_ADVISOR_LLM_ENDPOINT" required:""`
	APIKey   string `help:"LLM bearer credential." env:"TELEMETRY_ADVISOR_LLM_API_KEY"`
}

func (c *testCmd) Run() error {
	client := llmclient.New(llmclient.Config{Endpoint: c.Endpoint, APIKey: c.APIKey})
	sample := signal.Sample{
		Logs: []signal.LogEntry{{Level: "DEBUG", Message: "smoke test log", Timestamp: time.Now()}},
		Metadata: signal.SampleMetadata{
			TotalLogs: 1, SampledAt: time.Now(), TimeRange: "smoke-test",
		},
	}
	sampleJSON, err := sample.ToJSON()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	reply, err := client.Recommend(ctx, sampleJSON, nil)
	if err != nil {
		return fmt.Errorf("smoke test failed: %w", err)
	}
	parsed, err := parser.Parse(reply)
	if err != nil {
		return fmt.Errorf("smoke test reply did not parse: %w", err)
	}
	fmt.Printf("ok: smoke test produced %d recommendation(s)\n", parsed.Summary.Total)
	return nil
}

type policyCmd struct {
	Validate policyValidateCmd `cmd:"" help:"Load and validate a policy document."`
	Test     policyTestCmd     `cmd:"" help:"Load a policy document and print the summaries sent to the LLM."`
}

type policyValidateCmd struct {
	File string `arg:"" help:"Path to the policy YAML document."`
}

func (c *policyValidateCmd) Run() error {
	mgr, err := policy.Load(policy.Config{PolicyFile: c.File}, nil)
	if err != nil {
		return fmt.Errorf("invalid policy document: %w", err)
	}
	fmt.Printf("ok: %d polic%s valid\n", len(mgr.Current()), plural(len(mgr.Current())))
	return nil
}

type policyTestCmd struct {
	File string `arg:"" help:"Path to the policy YAML document."`
}

func (c *policyTestCmd) Run() error {
	mgr, err := policy.Load(policy.Config{PolicyFile: c.File}, nil)
	if err != nil {
		return fmt.Errorf("invalid policy document: %w", err)
	}
	for _, s := range policy.Summaries(mgr.Current()) {
		fmt.Println(s)
	}
	return nil
}

type versionCmd struct{}

func (c *versionCmd) Run() error {
	fmt.Println(version)
	return nil
}

func loadSamples(path string, max int) ([]signal.Sample, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var arr []signal.Sample
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) > max {
			arr = arr[:max]
		}
		return arr, nil
	}

	var single signal.Sample
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("sample file is neither a Sample nor a Sample array: %w", err)
	}
	return []signal.Sample{single}, nil
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
