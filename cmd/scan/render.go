package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/your-org/dermascan/internal/analysis"
)

// report is what the command prints, in either format.
type report struct {
	Barcode     string                `json:"barcode,omitempty"`
	Format      string                `json:"format,omitempty"`
	Outcome     string                `json:"outcome"`
	Message     string                `json:"message,omitempty"`
	Product     *analysis.ProductInfo `json:"product_info,omitempty"`
	Result      *analysis.Result      `json:"analysis,omitempty"`
	Ingredients []string              `json:"ingredients_analyzed,omitempty"`
}

func (r *report) fill(out *analysis.Outcome) {
	r.Outcome = out.Kind.String()
	r.Message = out.Message
	r.Product = out.Product
	r.Result = out.Result
	r.Ingredients = out.Ingredients
}

func write(w io.Writer, format string, r report) {
	if r.Outcome == "" {
		r.Outcome = analysis.Failure.String()
	}
	if format == "text" {
		renderText(w, r)
		return
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(r)
}

func renderText(w io.Writer, r report) {
	if r.Barcode != "" {
		fmt.Fprintf(w, "Barcode: %s (%s)\n", r.Barcode, r.Format)
	}
	if r.Outcome != analysis.Success.String() {
		fmt.Fprintf(w, "Error: %s\n", r.Message)
		return
	}

	if p := r.Product; p != nil && (p.Title != "" || p.Brand != "") {
		name := strings.TrimSpace(p.Title)
		if p.Brand != "" {
			name = strings.TrimSpace(name + " by " + p.Brand)
		}
		fmt.Fprintf(w, "Product: %s\n", name)
	}

	if res := r.Result; res != nil {
		verdict := "SAFE"
		if !res.Safe {
			verdict = "CAUTION"
		}
		fmt.Fprintf(w, "Verdict: %s (%d harmful of %d checked)\n", verdict, res.HarmfulCount, res.TotalIngredientsChecked)
		if res.PersonalizedScore != nil {
			fmt.Fprintf(w, "Score: %.0f %s\n", *res.PersonalizedScore, res.ScoreCategory)
		}

		names := make([]string, 0, len(res.HarmfulIngredients))
		for name := range res.HarmfulIngredients {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			cat := res.HarmfulIngredients[name]
			fmt.Fprintf(w, "  - %s [%s]: %s\n", name, cat.Severity, strings.Join(cat.Ingredients, ", "))
		}

		if rec := res.Recommendations; rec != nil {
			for _, tip := range rec.Tips {
				fmt.Fprintf(w, "Tip: %s\n", tip)
			}
		}
	}

	if len(r.Ingredients) > 0 {
		fmt.Fprintf(w, "Ingredients: %s\n", strings.Join(r.Ingredients, ", "))
	}
}
