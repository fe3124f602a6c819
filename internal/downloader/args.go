package downloader

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"datastore-downloader/internal/query"
	"datastore-downloader/pkg/models"
)

// Args are everything a download request asks for
type Args struct {
	Query    query.Args          `json:"query"`
	File     DerivativeArgs      `json:"file"`
	Server   models.ServerArgs   `json:"server"`
	Notifier models.NotifierArgs `json:"notifier"`
}

// DerivativeArgs select the output format and how records are written to it
type DerivativeArgs struct {
	Format            string         `json:"format"`
	FormatArgs        map[string]any `json:"format_args"`
	SeparateFiles     bool           `json:"separate_files"`
	IgnoreEmptyFields bool           `json:"ignore_empty_fields"`
	Transform         map[string]any `json:"transform"`
}

func (d DerivativeArgs) normalise() DerivativeArgs {
	d.Format = strings.ToLower(strings.TrimSpace(d.Format))
	if d.FormatArgs == nil {
		d.FormatArgs = map[string]any{}
	}
	if d.Transform == nil {
		d.Transform = map[string]any{}
	}
	return d
}

// options are the arguments stored on the derivative record beside its format
func (d DerivativeArgs) options() map[string]any {
	d = d.normalise()
	return map[string]any{
		"format_args":         d.FormatArgs,
		"separate_files":      d.SeparateFiles,
		"ignore_empty_fields": d.IgnoreEmptyFields,
		"transform":           d.Transform,
	}
}

// OptionsHash fingerprints the format and every option that changes the output
func (d DerivativeArgs) OptionsHash() (string, error) {
	d = d.normalise()
	options := d.options()
	options["format"] = d.Format
	// map keys are sorted when encoded so the text is canonical
	data, err := json.Marshal(options)
	if err != nil {
		return "", fmt.Errorf("failed to encode derivative options: %w", err)
	}
	return sha1Hex(string(data)), nil
}

// DownloadHash names the archive a query and option set produce
func DownloadHash(recordHash, optionsHash string) string {
	return sha1Hex(recordHash + "|" + optionsHash)
}

// derivativeArgsOf rebuilds the arguments a derivative record was created from
func derivativeArgsOf(record *models.DerivativeFileRecord) (DerivativeArgs, error) {
	args := DerivativeArgs{}
	data, err := json.Marshal(record.Options)
	if err != nil {
		return args, fmt.Errorf("failed to encode derivative options: %w", err)
	}
	decoder := json.NewDecoder(strings.NewReader(string(data)))
	decoder.UseNumber()
	if err := decoder.Decode(&args); err != nil {
		return args, fmt.Errorf("failed to decode derivative options: %w", err)
	}
	args.Format = record.Format
	return args.normalise(), nil
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
