// Package credential mints and verifies the entry credential a visit carries.
// A credential is issued exactly once, when the visit is created, and is good
// for a fixed window from issuance. It is never reissued and never extended;
// the expiry stored on the visit, not the token's own claims, is what decides
// whether it is still live.
package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"gatepass/internal/visit/models"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/sentinel"
	"gatepass/pkg/requestcontext"
)

// DefaultTTL is the credential validity window from issuance.
const DefaultTTL = 24 * time.Hour

// Claims is the credential token payload. The identifiers double as an
// offline hint for gate devices; the server always revalidates against the
// stored visit.
type Claims struct {
	VisitID    string `json:"visit_id"`
	VisitorID  string `json:"visitor_id"`
	BuildingID string `json:"building_id"`
	jwt.RegisteredClaims
}

// VisitSource resolves a credential token to the visit it was issued for.
type VisitSource interface {
	FindByCredential(ctx context.Context, token string) (*models.Visit, error)
}

// Manager issues and validates entry credentials.
type Manager struct {
	signingKey []byte
	ttl        time.Duration
	visits     VisitSource
}

// New constructs a Manager. ttl <= 0 falls back to DefaultTTL.
func New(signingKey string, ttl time.Duration, visits VisitSource) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		signingKey: []byte(signingKey),
		ttl:        ttl,
		visits:     visits,
	}
}

// TTL returns the validity window applied at issuance.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue mints the credential for a visit. The jti claim makes every token
// unique even for identical visit parameters.
func (m *Manager) Issue(visitID id.VisitID, visitorID id.VisitorID, buildingID id.BuildingID, issuedAt time.Time) (string, time.Time, error) {
	expiresAt := issuedAt.Add(m.ttl)
	claims := Claims{
		VisitID:    visitID.String(),
		VisitorID:  visitorID.String(),
		BuildingID: buildingID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign credential: %w", err)
	}
	return token, expiresAt, nil
}

// Validate checks a scanned token for entry at a building and returns the
// visit it admits. The checks run in a fixed order so the caller can rely on
// the error code:
//
//  1. unknown or forged token, or a token for another building,
//     → CodeCredentialNotFound
//  2. stored expiry passed → CodeCredentialExpired
//  3. already used for a check-in → CodeCredentialExhausted
//
// An expired credential stays expired: it is never revalidated or extended.
// Validate reads current state only; the atomic recheck happens inside the
// store Execute that records the check-in.
func (m *Manager) Validate(ctx context.Context, token string, buildingID id.BuildingID) (*models.Visit, error) {
	if token == "" {
		return nil, dErrors.New(dErrors.CodeCredentialNotFound, "credential not recognized")
	}
	// Signature check only. Expiry is decided by the stored window below, so
	// a lapsed-but-genuine token still resolves to its visit and reports
	// expired rather than unknown.
	if _, err := m.parse(token); err != nil {
		return nil, dErrors.New(dErrors.CodeCredentialNotFound, "credential not recognized")
	}

	visit, err := m.visits.FindByCredential(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeCredentialNotFound, "credential not recognized")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "credential lookup failed")
	}
	if visit.BuildingID != buildingID {
		// A credential for another building is indistinguishable from an
		// unknown one; do not leak that it exists elsewhere.
		return nil, dErrors.New(dErrors.CodeCredentialNotFound, "credential not recognized")
	}

	now := requestcontext.Now(ctx)
	if visit.CredentialExpired(now) {
		return nil, dErrors.New(dErrors.CodeCredentialExpired, "credential expired")
	}
	if visit.CheckInTime != nil {
		return nil, dErrors.New(dErrors.CodeCredentialExhausted, "credential already used")
	}
	return visit, nil
}

func (m *Manager) parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.signingKey, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// QRPNG renders the credential token as a PNG QR code. size is the image
// edge in pixels; values <= 0 get a scannable default.
func QRPNG(token string, size int) ([]byte, error) {
	if token == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "credential cannot be empty")
	}
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(token, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode credential qr: %w", err)
	}
	return png, nil
}
