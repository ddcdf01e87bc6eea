package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/TheMichaelB/safe/internal/models"
	"github.com/TheMichaelB/safe/internal/services/safe"
)

// stdout receives command results.
var stdout io.Writer = os.Stdout

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
)

func printSuccess(format string, args ...interface{}) {
	successColor.Fprintf(stdout, format+"\n", args...)
}

func printError(format string, args ...interface{}) {
	errorColor.Fprintf(os.Stderr, format+"\n", args...)
}

func printWarning(format string, args ...interface{}) {
	warningColor.Fprintf(os.Stderr, format+"\n", args...)
}

func printInfo(format string, args ...interface{}) {
	infoColor.Fprintf(stdout, format+"\n", args...)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
	}
}

// reportedError carries a failure whose details are already part of the
// command's JSON document.
type reportedError struct {
	error
}

func (e reportedError) Unwrap() error {
	return e.error
}

// reportError prints a command failure. In JSON mode stdout gets exactly
// one document, so failures already reported are not printed again.
func reportError(err error) {
	if !jsonOutput {
		printError("Error: %v", err)
		return
	}

	var reported reportedError
	if errors.As(err, &reported) {
		return
	}
	printJSON(map[string]interface{}{
		"success": false,
		"code":    errorCode(err),
		"error":   err.Error(),
	})
}

// reportOutcomes prints one line per file and returns the first failure.
func reportOutcomes(op string, outcomes []safe.Outcome) error {
	var firstErr error
	failed := 0

	items := make([]map[string]interface{}, 0, len(outcomes))
	for _, o := range outcomes {
		item := map[string]interface{}{"name": o.Name, "success": o.Err == nil}
		items = append(items, item)

		if o.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = o.Err
			}
			item["code"] = errorCode(o.Err)
			item["error"] = o.Err.Error()
			if !jsonOutput {
				printError("✗ %s: %v", o.Name, o.Err)
			}
			continue
		}

		item["result"] = o.Result
		switch {
		case jsonOutput:
		case o.Result.Skipped:
			printWarning("- %s: destination exists, skipped", o.Name)
		case o.Result.SourceRemoved:
			printSuccess("✓ %s → %s (%s, source removed)", o.Name, o.Result.URI, formatBytes(o.Result.Size))
		default:
			printSuccess("✓ %s → %s (%s)", o.Name, o.Result.URI, formatBytes(o.Result.Size))
		}
	}

	err := firstErr
	if failed > 1 {
		err = fmt.Errorf("%d of %d files failed: %w", failed, len(outcomes), firstErr)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"operation": op,
			"success":   failed == 0,
			"failed":    failed,
			"files":     items,
		})
		if err != nil {
			return reportedError{err}
		}
	}
	return err
}

func printInfoBlock(res *safe.Result) {
	info := res.Info
	fmt.Fprintf(stdout, "File:       %s\n", res.Path)
	if !res.Modified.IsZero() {
		fmt.Fprintf(stdout, "Modified:   %s\n", res.Modified.Format(time.RFC3339))
	}
	fmt.Fprintf(stdout, "Format:     v%d\n", info.Version)
	fmt.Fprintf(stdout, "Cipher:     %s\n", info.Cipher)
	fmt.Fprintf(stdout, "KDF:        %s\n", info.KDF)
	fmt.Fprintf(stdout, "Salt:       %d bytes\n", info.SaltSize)
	fmt.Fprintf(stdout, "Nonce:      %d bytes\n", info.NonceSize)
	fmt.Fprintf(stdout, "Container:  %s\n", formatBytes(info.ContainerSize))
	fmt.Fprintf(stdout, "Plaintext:  %s\n", formatBytes(info.PlaintextSize))
	fmt.Fprintf(stdout, "SHA-256:    %s\n", res.SHA256)
}

// errorCode returns the code of err, INVALID_INPUT for missing passwords
// and an empty string otherwise.
func errorCode(err error) string {
	if code := models.Code(err); code != "" {
		return code
	}
	if errors.Is(err, models.ErrNoPassword) {
		return models.ErrCodeInvalidInput
	}
	return ""
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch errorCode(err) {
	case models.ErrCodeInvalidInput:
		return 2
	case models.ErrCodeMalformed:
		return 3
	case models.ErrCodeAuth:
		return 4
	case models.ErrCodeIO:
		return 5
	case models.ErrCodeCanceled:
		return 130
	default:
		return 1
	}
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
