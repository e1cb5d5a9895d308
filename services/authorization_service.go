// services/authorization_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"pft-node-service/models"
	"pft-node-service/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Default cool-off windows, overridable via YELLOW_FLAG_HOURS /
// RED_FLAG_HOURS.
const (
	defaultYellowFlagHours = 24
	defaultRedFlagHours    = 240
)

// ErrIdentityNotFound is returned when a transition targets an identity
// with no bound addresses.
var ErrIdentityNotFound = errors.New("no addresses bound to identity")

type AuthorizationService struct {
	DB                 *gorm.DB
	YellowFlagDuration time.Duration
	RedFlagDuration    time.Duration
}

// Identity is the external identity an address is bound to. Several
// addresses may share one identity; every transition fans out to all of
// them.
type Identity struct {
	AuthSource       string `json:"auth_source"`
	AuthSourceUserID string `json:"auth_source_user_id"`
}

// FlagStatus reports a live flag: severity and seconds until expiry,
// computed from the stored expiry at read time.
type FlagStatus struct {
	Severity         string `json:"severity"`
	RemainingSeconds int64  `json:"remaining_seconds"`
}

func NewAuthorizationService(db *gorm.DB) *AuthorizationService {
	return &AuthorizationService{
		DB:                 db,
		YellowFlagDuration: time.Duration(envHours("YELLOW_FLAG_HOURS", defaultYellowFlagHours)) * time.Hour,
		RedFlagDuration:    time.Duration(envHours("RED_FLAG_HOURS", defaultRedFlagHours)) * time.Hour,
	}
}

func envHours(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	hours, err := strconv.Atoi(raw)
	if err != nil || hours <= 0 {
		log.Printf("⚠️  Invalid %s=%q, using default %d", name, raw, fallback)
		return fallback
	}
	return hours
}

// Authorize binds the address to the identity and authorizes every address
// sharing that identity, clearing any flag or deauthorization.
func (s *AuthorizationService) Authorize(address string, identity Identity, actor string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		row := models.AuthorizedAddress{
			Address:          address,
			AuthSource:       identity.AuthSource,
			AuthSourceUserID: identity.AuthSourceUserID,
			IsAuthorized:     true,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "address"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"auth_source",
				"auth_source_user_id",
			}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("failed to bind address %s: %w", address, err)
		}

		if err := applyIdentityUpdate(tx, identity, map[string]interface{}{
			"is_authorized":   true,
			"flag_type":       nil,
			"flag_expires_at": nil,
			"deauthorized_at": nil,
			"updated_at":      now,
		}); err != nil {
			return err
		}
		return recordModeration(tx, "authorize", address, identity, "", actor, "")
	})
}

// Deauthorize marks every address of the identity as not authorized. Any
// active flag cool-off is voided by the explicit deauthorization.
func (s *AuthorizationService) Deauthorize(identity Identity, actor string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if err := applyIdentityUpdate(tx, identity, map[string]interface{}{
			"is_authorized":   false,
			"flag_type":       nil,
			"flag_expires_at": nil,
			"deauthorized_at": now,
			"updated_at":      now,
		}); err != nil {
			return err
		}
		return recordModeration(tx, "deauthorize", "", identity, "", actor, "")
	})
}

// Flag puts the identity into a timed cool-off. durationHours overrides the
// configured severity default when positive. Flagged identities are not
// authorized until the flag expires or is cleared.
func (s *AuthorizationService) Flag(identity Identity, severity string, durationHours int, actor string) error {
	var duration time.Duration
	switch severity {
	case models.FlagTypeYellow:
		duration = s.YellowFlagDuration
	case models.FlagTypeRed:
		duration = s.RedFlagDuration
	default:
		return fmt.Errorf("unknown flag severity %q", severity)
	}
	if durationHours > 0 {
		duration = time.Duration(durationHours) * time.Hour
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		expiresAt := now.Add(duration)
		if err := applyIdentityUpdate(tx, identity, map[string]interface{}{
			"is_authorized":   false,
			"flag_type":       severity,
			"flag_expires_at": expiresAt,
			"updated_at":      now,
		}); err != nil {
			return err
		}
		return recordModeration(tx, "flag", "", identity, severity, actor,
			fmt.Sprintf("expires %s", expiresAt.Format(time.RFC3339)))
	})
}

// ClearFlag lifts an active flag early and restores authorization.
func (s *AuthorizationService) ClearFlag(identity Identity, actor string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if err := applyIdentityUpdate(tx, identity, map[string]interface{}{
			"is_authorized":   true,
			"flag_type":       nil,
			"flag_expires_at": nil,
			"updated_at":      now,
		}); err != nil {
			return err
		}
		return recordModeration(tx, "clear_flag", "", identity, "", actor, "")
	})
}

func applyIdentityUpdate(tx *gorm.DB, identity Identity, updates map[string]interface{}) error {
	res := tx.Model(&models.AuthorizedAddress{}).
		Where("auth_source = ? AND auth_source_user_id = ?", identity.AuthSource, identity.AuthSourceUserID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update identity %s/%s: %w", identity.AuthSource, identity.AuthSourceUserID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

func recordModeration(tx *gorm.DB, action, address string, identity Identity, flagType, actor, notes string) error {
	return tx.Create(&models.ModerationAction{
		ID:               uuid.NewString(),
		Action:           action,
		Address:          address,
		AuthSource:       identity.AuthSource,
		AuthSourceUserID: identity.AuthSourceUserID,
		FlagType:         flagType,
		Actor:            actor,
		Notes:            notes,
		CreatedAt:        time.Now().UTC(),
	}).Error
}

// IsAuthorized reports whether the address may submit work. A flag whose
// expiry has passed counts as authorized even before the sweep clears it.
func (s *AuthorizationService) IsAuthorized(address string) (bool, error) {
	var row models.AuthorizedAddress
	err := s.DB.First(&row, "address = ?", address).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if row.IsAuthorized {
		return true, nil
	}
	if row.FlagType != nil && row.FlagExpiresAt != nil && !row.FlagExpiresAt.After(time.Now().UTC()) {
		return true, nil
	}
	return false, nil
}

// IsFlagged reports the identity's live flag state, computed from the
// stored expiry so a stale sweep never reports a lapsed flag as still
// active. Returns nil once expired.
func (s *AuthorizationService) IsFlagged(identity Identity) (*FlagStatus, error) {
	var row models.AuthorizedAddress
	err := s.DB.
		Where("auth_source = ? AND auth_source_user_id = ?", identity.AuthSource, identity.AuthSourceUserID).
		Where("flag_type IS NOT NULL").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if row.FlagType == nil || row.FlagExpiresAt == nil {
		return nil, nil
	}

	remaining := time.Until(*row.FlagExpiresAt)
	if remaining <= 0 {
		return nil, nil
	}
	return &FlagStatus{
		Severity:         *row.FlagType,
		RemainingSeconds: int64(remaining.Seconds()),
	}, nil
}

// ResolveIdentity returns the identity an address is bound to.
func (s *AuthorizationService) ResolveIdentity(address string) (*Identity, error) {
	var row models.AuthorizedAddress
	err := s.DB.First(&row, "address = ?", address).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Identity{AuthSource: row.AuthSource, AuthSourceUserID: row.AuthSourceUserID}, nil
}

// SweepExpired re-authorizes every identity whose flag cool-off has lapsed.
// Run periodically; reads never depend on it having run.
func (s *AuthorizationService) SweepExpired() (int64, error) {
	res := s.DB.Model(&models.AuthorizedAddress{}).
		Where("flag_type IS NOT NULL AND flag_expires_at <= ?", time.Now().UTC()).
		Updates(map[string]interface{}{
			"is_authorized":   true,
			"flag_type":       nil,
			"flag_expires_at": nil,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to sweep expired flags: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// --- HTTP handlers ---

type moderationRequest struct {
	Address          string `json:"address"`
	AuthSource       string `json:"auth_source"`
	AuthSourceUserID string `json:"auth_source_user_id"`
	Severity         string `json:"severity"`
	DurationHours    int    `json:"duration_hours"`
	Actor            string `json:"actor"`
}

// identityFromRequest resolves the target identity: explicit identity
// fields win, otherwise the address's binding is looked up.
func (s *AuthorizationService) identityFromRequest(req moderationRequest) (*Identity, error) {
	if req.AuthSource != "" && req.AuthSourceUserID != "" {
		return &Identity{AuthSource: req.AuthSource, AuthSourceUserID: req.AuthSourceUserID}, nil
	}
	if req.Address != "" {
		return s.ResolveIdentity(req.Address)
	}
	return nil, nil
}

// HandleAuthorize serves POST /moderation/authorize
func (s *AuthorizationService) HandleAuthorize(c *fiber.Ctx) error {
	var req moderationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if !utils.IsValidAddress(req.Address) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid address"})
	}
	if req.AuthSource == "" || req.AuthSourceUserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "auth_source and auth_source_user_id are required"})
	}

	identity := Identity{AuthSource: req.AuthSource, AuthSourceUserID: req.AuthSourceUserID}
	if err := s.Authorize(req.Address, identity, req.Actor); err != nil {
		log.Printf("❌ Authorize failed for %s: %v", req.Address, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to authorize"})
	}
	return c.JSON(fiber.Map{"status": "authorized", "address": req.Address})
}

// HandleDeauthorize serves POST /moderation/deauthorize
func (s *AuthorizationService) HandleDeauthorize(c *fiber.Ctx) error {
	var req moderationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	identity, err := s.identityFromRequest(req)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if identity == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Unknown identity"})
	}

	if err := s.Deauthorize(*identity, req.Actor); err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Unknown identity"})
		}
		log.Printf("❌ Deauthorize failed for %s/%s: %v", identity.AuthSource, identity.AuthSourceUserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to deauthorize"})
	}
	return c.JSON(fiber.Map{"status": "deauthorized"})
}

// HandleFlag serves POST /moderation/flag
func (s *AuthorizationService) HandleFlag(c *fiber.Ctx) error {
	var req moderationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Severity != models.FlagTypeYellow && req.Severity != models.FlagTypeRed {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Severity must be YELLOW or RED"})
	}
	identity, err := s.identityFromRequest(req)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if identity == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Unknown identity"})
	}

	if err := s.Flag(*identity, req.Severity, req.DurationHours, req.Actor); err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Unknown identity"})
		}
		log.Printf("❌ Flag failed for %s/%s: %v", identity.AuthSource, identity.AuthSourceUserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to flag"})
	}
	return c.JSON(fiber.Map{"status": "flagged", "severity": req.Severity})
}

// HandleClearFlag serves POST /moderation/clear-flag
func (s *AuthorizationService) HandleClearFlag(c *fiber.Ctx) error {
	var req moderationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	identity, err := s.identityFromRequest(req)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if identity == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Unknown identity"})
	}

	if err := s.ClearFlag(*identity, req.Actor); err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Unknown identity"})
		}
		log.Printf("❌ Clear flag failed for %s/%s: %v", identity.AuthSource, identity.AuthSourceUserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to clear flag"})
	}
	return c.JSON(fiber.Map{"status": "cleared"})
}

// HandleFlagStatus serves GET /moderation/flag-status
func (s *AuthorizationService) HandleFlagStatus(c *fiber.Ctx) error {
	identity := Identity{
		AuthSource:       c.Query("auth_source"),
		AuthSourceUserID: c.Query("auth_source_user_id"),
	}
	if identity.AuthSource == "" || identity.AuthSourceUserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "auth_source and auth_source_user_id are required"})
	}

	status, err := s.IsFlagged(identity)
	if err != nil {
		log.Printf("DB error checking flag status: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if status == nil {
		return c.JSON(fiber.Map{"flagged": false})
	}
	return c.JSON(fiber.Map{"flagged": true, "flag": status})
}

// HandleAuthorizationStatus serves GET /moderation/status/:address
func (s *AuthorizationService) HandleAuthorizationStatus(c *fiber.Ctx) error {
	address := c.Params("address")
	if !utils.IsValidAddress(address) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid address"})
	}

	authorized, err := s.IsAuthorized(address)
	if err != nil {
		log.Printf("DB error checking authorization for %s: %v", address, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(fiber.Map{"address": address, "authorized": authorized})
}
