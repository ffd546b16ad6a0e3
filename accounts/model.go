package accounts

import (
	"time"

	goAccount "github.com/MrEthical07/goAccount"
)

// Record is the accounts table row.
type Record struct {
	ID           string `gorm:"primaryKey;size:64"`
	Email        string `gorm:"uniqueIndex;size:255;not null"`
	Verified     bool   `gorm:"not null;default:false"`
	VerifiedAt   *time.Time
	Locale       string `gorm:"size:35;not null;default:''"`
	KA           []byte `gorm:"column:ka;not null"`
	WrapKb       []byte `gorm:"column:wrap_kb;not null"`
	KeySalt      []byte `gorm:"not null"`
	PasswordSalt []byte `gorm:"not null"`
	VerifierHash string `gorm:"size:255;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName fixes the table name regardless of naming strategy.
func (Record) TableName() string {
	return "accounts"
}

func fromAccount(a goAccount.Account) Record {
	return Record{
		ID:           a.ID,
		Email:        a.Email,
		Verified:     a.Verified,
		Locale:       a.Locale,
		KA:           a.KA,
		WrapKb:       a.WrapKb,
		KeySalt:      a.KeySalt,
		PasswordSalt: a.PasswordSalt,
		VerifierHash: a.VerifierHash,
		CreatedAt:    a.CreatedAt,
	}
}

func (r Record) toAccount() goAccount.Account {
	return goAccount.Account{
		ID:           r.ID,
		Email:        r.Email,
		Verified:     r.Verified,
		Locale:       r.Locale,
		KA:           r.KA,
		WrapKb:       r.WrapKb,
		KeySalt:      r.KeySalt,
		PasswordSalt: r.PasswordSalt,
		VerifierHash: r.VerifierHash,
		CreatedAt:    r.CreatedAt,
	}
}
