package analysis

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/your-org/dermascan/internal/profile"
)

var (
	ErrInvalidRequest = errors.New("analysis request needs exactly one of barcode or ingredients")
	ErrBusy           = errors.New("an analysis is already in progress")

	ErrSoftFailure  = errors.New("analysis failed")
	ErrNotFound     = errors.New("product not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnreachable  = errors.New("cannot reach analysis service")
	ErrServerError  = errors.New("analysis server error")
)

// Request is the body of POST /analyze. Exactly one of Barcode or
// Ingredients is set. Barcode is sent exactly as decoded.
type Request struct {
	Barcode     string           `json:"barcode,omitempty"`
	Ingredients string           `json:"ingredients,omitempty"`
	UserProfile *profile.Profile `json:"user_profile,omitempty"`
}

func (r Request) Validate() error {
	hasBarcode := r.Barcode != ""
	hasIngredients := r.Ingredients != ""
	if hasBarcode == hasIngredients {
		return ErrInvalidRequest
	}
	if hasBarcode && strings.TrimSpace(r.Barcode) == "" {
		return ErrInvalidRequest
	}
	if hasIngredients && strings.TrimSpace(r.Ingredients) == "" {
		return ErrInvalidRequest
	}
	return nil
}

type response struct {
	Success     bool            `json:"success"`
	Analysis    json.RawMessage `json:"analysis,omitempty"`
	ProductInfo *ProductInfo    `json:"product_info,omitempty"`
	Ingredients []string        `json:"ingredients_analyzed,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Result is the verdict returned by the analysis service. Only the fields the
// station renders are typed; Raw keeps the full payload.
type Result struct {
	Safe                    bool                       `json:"safe"`
	HarmfulCount            int                        `json:"harmful_count"`
	HarmfulIngredients      map[string]HarmfulCategory `json:"harmful_ingredients,omitempty"`
	TotalIngredientsChecked int                        `json:"total_ingredients_checked"`
	PersonalizedScore       *float64                   `json:"personalized_score,omitempty"`
	ScoreCategory           string                     `json:"score_category,omitempty"`
	Recommendations         *Recommendations           `json:"recommendations,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type HarmfulCategory struct {
	Description string   `json:"description,omitempty"`
	Ingredients []string `json:"ingredients,omitempty"`
	Severity    string   `json:"severity,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

type Recommendations struct {
	Products           []string `json:"products,omitempty"`
	Tips               []string `json:"tips,omitempty"`
	AvoidIngredients   []string `json:"avoid_ingredients,omitempty"`
	LookForIngredients []string `json:"look_for_ingredients,omitempty"`
	Description        string   `json:"description,omitempty"`
}

type ProductInfo struct {
	Title       string `json:"title,omitempty"`
	Brand       string `json:"brand,omitempty"`
	Ingredients string `json:"ingredients,omitempty"`
	Image       string `json:"image,omitempty"`
}

type Kind int

const (
	Success Kind = iota
	Failure
)

func (k Kind) String() string {
	if k == Success {
		return "success"
	}
	return "failure"
}

// Outcome is the result of one analysis call. On Failure, Message is ready to
// show to the user and Err is one of the category errors above.
type Outcome struct {
	Kind        Kind
	Result      *Result
	Product     *ProductInfo
	Ingredients []string
	Message     string
	Status      int
	Err         error
}

func failure(err error, status int, msg string) *Outcome {
	return &Outcome{Kind: Failure, Err: err, Status: status, Message: msg}
}

// category is the metrics label for an outcome.
func (o *Outcome) category() string {
	switch {
	case o.Kind == Success:
		return "success"
	case errors.Is(o.Err, ErrNotFound):
		return "not_found"
	case errors.Is(o.Err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(o.Err, ErrUnreachable):
		return "unreachable"
	case errors.Is(o.Err, ErrServerError):
		return "server_error"
	default:
		return "soft_failure"
	}
}
