package ledger

import (
	"errors"
	"fmt"

	"github.com/zulandar/soundcheck/internal/apperr"
	"github.com/zulandar/soundcheck/internal/models"
	"gorm.io/gorm"
)

// Credit transaction types.
const (
	TxPurchase = "PURCHASE"
	TxSpend    = "SPEND"
	TxRefund   = "REFUND"
	TxEarn     = "EARN"
)

// Apply adds amount (negative to debit) to an artist's credits and writes the
// audit row. Debits are conditional on the balance covering them, so credits
// never go negative. It must run inside the caller's transaction.
func Apply(tx *gorm.DB, artistID, trackID, typ string, amount int) (int, error) {
	if amount == 0 {
		return 0, fmt.Errorf("ledger: zero %s on %s", typ, artistID)
	}
	q := tx.Model(&models.ArtistProfile{}).Where("id = ?", artistID)
	updates := map[string]interface{}{
		"review_credits": gorm.Expr("review_credits + ?", amount),
	}
	if amount < 0 {
		q = q.Where("review_credits >= ?", -amount)
	}
	if typ == TxSpend {
		updates["total_credits_spent"] = gorm.Expr("total_credits_spent + ?", -amount)
	}
	if typ == TxRefund {
		updates["total_credits_spent"] = gorm.Expr("total_credits_spent - ?", amount)
	}
	result := q.Updates(updates)
	if result.Error != nil {
		return 0, fmt.Errorf("ledger: %s %d for %s: %w", typ, amount, artistID, result.Error)
	}

	var profile models.ArtistProfile
	if err := tx.Select("id", "review_credits").Where("id = ?", artistID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperr.Missing("artist %s not found", artistID)
		}
		return 0, fmt.Errorf("ledger: read balance of %s: %w", artistID, err)
	}
	if result.RowsAffected == 0 {
		return profile.ReviewCredits, apperr.New(apperr.Invalid,
			"insufficient credits: have %d, need %d", profile.ReviewCredits, -amount)
	}
	if profile.ReviewCredits < 0 {
		return profile.ReviewCredits, apperr.Broken("artist %s credits went negative (%d)", artistID, profile.ReviewCredits)
	}

	entry := models.CreditTransaction{
		ArtistID: artistID,
		TrackID:  trackID,
		Type:     typ,
		Amount:   amount,
		Balance:  profile.ReviewCredits,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return 0, fmt.Errorf("ledger: record %s for %s: %w", typ, artistID, err)
	}
	return profile.ReviewCredits, nil
}

// History returns an artist's credit transactions, oldest first.
func History(gdb *gorm.DB, artistID string) ([]models.CreditTransaction, error) {
	var out []models.CreditTransaction
	if err := gdb.Where("artist_id = ?", artistID).Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("ledger: history of %s: %w", artistID, err)
	}
	return out, nil
}
