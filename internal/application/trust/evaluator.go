package trust

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-verify-nosql/internal/domain"
)

// Decision is the evaluator's verdict. There is deliberately no rejection:
// automation only approves or defers.
type Decision string

const (
	Approved     Decision = "approved"
	Undetermined Decision = "undetermined"
)

// Reasons attached to evaluator results.
const (
	ReasonTrustedDomain  = "trusted domain"
	ReasonContentMatched = "website content matched"
	ReasonNoMatch        = "no automatic rule matched"
	ReasonFetchFailed    = "website could not be fetched"
	ReasonNoDocuments    = "website matched but no documents were provided"
	ReasonNoWebsite      = "no website provided"
)

// Result is returned by Evaluate.
type Result struct {
	Decision Decision
	Reason   string
}

// Fetcher retrieves the body of a web page. Implementations must honour both
// ctx and timeout.
type Fetcher interface {
	FetchURL(ctx context.Context, url string, timeout time.Duration) ([]byte, error)
}

// Evaluator applies the static trust rules plus one content fetch.
type Evaluator struct {
	fetcher      Fetcher
	fetchTimeout time.Duration
	logger       *slog.Logger
}

func NewEvaluator(fetcher Fetcher, fetchTimeout time.Duration, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{fetcher: fetcher, fetchTimeout: fetchTimeout, logger: logger}
}

// Evaluate decides whether rec can be approved without a human. A failing
// fetch downgrades to Undetermined and is never surfaced as an error.
func (e *Evaluator) Evaluate(ctx context.Context, rec *domain.VerificationRecord) Result {
	if IsTrustedDomain(EmailDomain(rec.SubmittedEmail)) {
		return Result{Decision: Approved, Reason: ReasonTrustedDomain}
	}

	target := NormalizeURL(rec.SubmittedWebsite)
	if target == "" {
		return Result{Decision: Undetermined, Reason: ReasonNoWebsite}
	}
	body, err := e.fetcher.FetchURL(ctx, target, e.fetchTimeout)
	if err != nil {
		e.logger.InfoContext(ctx, "website fetch failed",
			"verification_id", rec.VerificationID,
			"url", target,
			"err", err,
		)
		return Result{Decision: Undetermined, Reason: ReasonFetchFailed}
	}

	keyword, ok := matchKeyword(strings.ToLower(string(body)))
	if !ok {
		return Result{Decision: Undetermined, Reason: ReasonNoMatch}
	}
	if len(rec.DocumentRefs) == 0 {
		return Result{Decision: Undetermined, Reason: ReasonNoDocuments}
	}
	return Result{Decision: Approved, Reason: ReasonContentMatched + ": " + keyword}
}

// EmailDomain returns the lower-cased part after the last "@", or "" when
// the address has none.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[at+1:]))
}

// IsTrustedDomain applies exact-or-suffix matching to full domains and
// substring matching to fragments.
func IsTrustedDomain(d string) bool {
	if d == "" {
		return false
	}
	for _, t := range trustedDomains {
		if d == t || strings.HasSuffix(d, "."+t) {
			return true
		}
	}
	for _, f := range trustedFragments {
		if strings.Contains(d, f) {
			return true
		}
	}
	return false
}

// NormalizeURL trims raw and prefixes https:// when no scheme is present.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return raw
	}
	return "https://" + raw
}

func matchKeyword(body string) (string, bool) {
	for _, k := range contentKeywords {
		if strings.Contains(body, k) {
			return k, true
		}
	}
	return "", false
}
