package web

import "github.com/conorfennell/grove/internal/importer"

type importResult struct {
	DeckID   string   `json:"deck_id"`
	Sources  int      `json:"sources"`
	Parsed   int      `json:"parsed"`
	Inserted int      `json:"inserted"`
	Removed  int      `json:"removed"`
	Errors   []string `json:"errors"`
}

func importBody(res *importer.Result) importResult {
	out := importResult{
		DeckID:   res.DeckID,
		Sources:  res.Sources,
		Parsed:   res.Parsed,
		Inserted: res.Inserted,
		Removed:  res.Removed,
		Errors:   []string{},
	}
	for _, err := range res.Errors {
		out.Errors = append(out.Errors, err.Error())
	}
	return out
}
