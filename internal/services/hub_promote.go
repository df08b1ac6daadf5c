package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-customer-hub/internal/domain"
	"github.com/tbourn/go-customer-hub/internal/repo"
)

// PromoteInput carries the customer profile captured on promotion. Name is
// required; the rest are optional.
type PromoteInput struct {
	Name   string
	Region string
	Level  string
	Owner  string
}

// PromoteResult describes a freshly promoted customer.
type PromoteResult struct {
	ContactID    string             `json:"contact_id"`
	CustomerCode string             `json:"customer_code"`
	Type         domain.ContactType `json:"type"`
	Confidence   int                `json:"confidence"`
	ThreadID     string             `json:"thread_id,omitempty"`
}

// FormatCustomerCode renders K<seq> followed by the non-empty segments
// region, name, level and source, joined by "-".
//
//	FormatCustomerCode(7, "华东", "张三", "A", "微信") // "K0007-华东-张三-A-微信"
func FormatCustomerCode(seq uint, region, name, level, source string) string {
	parts := []string{fmt.Sprintf("K%04d", seq)}
	for _, p := range []string{region, name, level, source} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "-")
}

// PromoteToCustomer turns a contact into a customer: it allocates the next
// customer sequence, writes the immutable customer code, sets confidence to
// 100 and forces the contact's current thread into the WHITE bucket, all in
// one transaction. A contact can be promoted only once.
func (s *CustomerHubService) PromoteToCustomer(ctx context.Context, contactID string, in PromoteInput) (*PromoteResult, error) {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "PromoteToCustomer",
		trace.WithAttributes(attribute.String("contact.id", contactID)),
	)
	defer span.End()

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(contactID) == "" {
		return nil, fmt.Errorf("%w: contact_id is required", ErrInvalidInput)
	}

	var res *PromoteResult
	err := s.withRetry(ctx, "promote contact", func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			c, err := s.Repo.GetContact(ctx, tx, contactID)
			if errors.Is(err, repo.ErrNotFound) {
				return ErrContactNotFound
			}
			if err != nil {
				return err
			}
			if c.CustomerCode != nil {
				return ErrAlreadyPromoted
			}

			seq, err := s.Repo.NextCustomerSeq(ctx, tx, c.ID)
			if err != nil {
				return err
			}
			now := s.now()
			code := FormatCustomerCode(seq, in.Region, name, in.Level, s.CustomerCodeSource)
			p := repo.Promotion{
				Code:   code,
				Owner:  optional(in.Owner),
				Region: optional(in.Region),
				Level:  optional(in.Level),
				At:     now,
			}
			if err := s.Repo.PromoteContact(ctx, tx, c.ID, p); err != nil {
				if errors.Is(err, repo.ErrAlreadyPromoted) {
					return ErrAlreadyPromoted
				}
				return err
			}

			r := &PromoteResult{
				ContactID:    c.ID,
				CustomerCode: code,
				Type:         domain.ContactCustomer,
				Confidence:   100,
			}
			t, err := s.Repo.GetThreadByContact(ctx, tx, c.ID)
			switch {
			case errors.Is(err, repo.ErrNotFound):
			case err != nil:
				return err
			default:
				if t.Bucket != domain.BucketWhite {
					t.Bucket = domain.BucketWhite
					t.UpdatedAt = now
					if err := s.Repo.SaveThread(ctx, tx, t); err != nil {
						return err
					}
				}
				r.ThreadID = t.ID
			}
			res = r
			return nil
		})
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrContactNotFound), errors.Is(err, ErrAlreadyPromoted), errors.Is(err, ErrConcurrentUpdate):
		return nil, err
	default:
		span.RecordError(err)
		return nil, fmt.Errorf("promote contact %s: %w", contactID, err)
	}

	log.Info().Str("contact_id", res.ContactID).Str("customer_code", res.CustomerCode).Msg("contact promoted")
	return res, nil
}

// optional returns nil for blank s.
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
