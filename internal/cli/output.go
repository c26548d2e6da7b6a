package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/jacentio/relval/model"
	"github.com/jacentio/relval/relval"
)

// readObject decodes a JSON object from the file named in args, or from
// stdin when args is empty or "-".
func readObject(cmd *cobra.Command, args []string) (model.Object, error) {
	var r io.Reader = cmd.InOrStdin()
	name := "stdin"
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r, name = f, args[0]
	}
	var obj model.Object
	if err := json.NewDecoder(r).Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("decode %s: expected a JSON object", name)
	}
	return obj, nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Describe formats err for the terminal, naming the HTTP status the error
// maps to when it is a client error.
func Describe(err error) string {
	status := relval.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		return err.Error()
	}
	return fmt.Sprintf("%s (%d %s)", err, status, http.StatusText(status))
}

// ExitCode returns 2 for client errors and 1 otherwise.
func ExitCode(err error) int {
	if status := relval.HTTPStatus(err); status >= 400 && status < 500 {
		return 2
	}
	return 1
}
