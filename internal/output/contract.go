package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	caherrors "github.com/KollinFreise/carbonAwareHome/internal/errors"
	"github.com/KollinFreise/carbonAwareHome/pkg"
)

type ErrorResponse struct {
	SchemaVersion string `json:"schema_version"`
	Error         string `json:"error"`
	Code          int    `json:"code"`
	Status        string `json:"status,omitempty"`
}

// WriteError renders err to w and returns the exit code to use.
func WriteError(w io.Writer, err error, asJSON bool) int {
	if err == nil {
		return caherrors.Success
	}

	code := caherrors.GetCode(err)
	if asJSON {
		resp := ErrorResponse{
			SchemaVersion: pkg.JSONSchemaVersion,
			Error:         err.Error(),
			Code:          code,
			Status:        caherrors.GetStatus(err),
		}
		if encodeErr := json.NewEncoder(w).Encode(resp); encodeErr == nil {
			return code
		}
	}

	fmt.Fprintln(w, err.Error())
	return code
}

func HandleExit(err error, asJSON bool) {
	os.Exit(WriteError(os.Stderr, err, asJSON))
}
