package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relionix/queryc/cmd/queryc/config"
	"github.com/relionix/queryc/cmd/queryc/ui"
	"github.com/relionix/queryc/cmd/queryc/version"
	"github.com/relionix/queryc/internal/core/compiler"
	"github.com/relionix/queryc/internal/core/dialect"
	"github.com/relionix/queryc/internal/core/query/request"
	"github.com/relionix/queryc/internal/core/schema"
	"github.com/relionix/queryc/internal/core/schema/domain"
	"github.com/relionix/queryc/internal/core/serialize"
	"github.com/relionix/queryc/internal/observability"
)

var (
	schemaPath   string
	requestPath  string
	batchMode    bool
	explain      bool
	useMsgpack   bool
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "compile a query request into a program",
	RunE:  runCompile,
}

func init() {
	compileCmd.Flags().StringVar(&schemaPath, "schema", "schema.json", "path to the JSON-encoded schema model")
	compileCmd.Flags().StringVar(&requestPath, "request", "", "path to the JSON-encoded request (reads stdin if empty)")
	compileCmd.Flags().BoolVar(&batchMode, "batch", false, "treat the request as a batch")
	compileCmd.Flags().BoolVar(&explain, "explain", false, "print the compiled program's guard tree instead of its wire form")
	compileCmd.Flags().BoolVar(&useMsgpack, "msgpack", false, "emit msgpack instead of JSON")
}

func runCompile(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if compatible, err := version.CheckCompatible(cfg.EngineVersion); err != nil {
		return fmt.Errorf("checking engine compatibility: %w", err)
	} else if !compatible {
		return fmt.Errorf("config requires engine version %q, running %s", cfg.EngineVersion, version.Version)
	}

	reg, err := loadRegistry(schemaPath)
	if err != nil {
		return fmt.Errorf("loading schema: %w", err)
	}

	providerName := dialect.FromProvider(reg.Schema().Datasources[0].Provider)
	c, err := compiler.New(reg, providerName, observability.Logger())
	if err != nil {
		return fmt.Errorf("building compiler: %w", err)
	}

	raw, err := readInput(requestPath)
	if err != nil {
		return err
	}

	var result *compiler.Result
	if batchMode {
		var batch request.RawBatch
		if err := json.Unmarshal(raw, &batch); err != nil {
			return fmt.Errorf("decoding batch request: %w", err)
		}
		result, err = c.CompileBatch(batch)
	} else {
		var single request.Raw
		if err := json.Unmarshal(raw, &single); err != nil {
			return fmt.Errorf("decoding request: %w", err)
		}
		result, err = c.Compile(single)
	}
	if err != nil {
		ui.PrintError("compile failed: %v", err)
		return err
	}

	if explain {
		guardNames := make([]string, len(result.Guards))
		for i, g := range result.Guards {
			guardNames[i] = string(g)
		}
		ui.ProgramTree("compiled", schemaPath, guardNames)
		ui.PrintSuccess("compiled with %d guard(s)", len(result.Guards))
		return nil
	}

	if useMsgpack {
		out, err := serialize.MarshalMsgpack(result.Document)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}

	out, err := serialize.MarshalJSON(result.Document)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func readInput(path string) ([]byte, error) {
	if path == "" {
		return readAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func readAll(f *os.File) ([]byte, error) {
	var buf []byte
	chunk := make([]byte, 4096)
	for {
		n, err := f.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return buf, nil
}

// loadRegistry reads a JSON-encoded domain.Schema from disk and indexes it.
// Parsing a native schema source (e.g. a `.prisma`-style DSL) is an external
// collaborator's job this module only has a contract with (spec.md §1
// Non-goals); the CLI's own input format is the schema model's JSON form.
func loadRegistry(path string) (*schema.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s domain.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return schema.New(&s)
}
