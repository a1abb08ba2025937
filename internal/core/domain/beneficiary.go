package domain

// BeneficiaryStatus tracks verification of a saved recipient.
type BeneficiaryStatus string

const (
	BeneficiaryPendingVerification BeneficiaryStatus = "pending_verification"
	BeneficiaryVerified            BeneficiaryStatus = "verified"
	BeneficiarySuspended           BeneficiaryStatus = "suspended"
	BeneficiaryBlocked             BeneficiaryStatus = "blocked"
)

// Beneficiary is owned by the beneficiary store. Transfers keep only its ID and re-read it at initiation.
type Beneficiary struct {
	BeneficiaryID  string            `json:"beneficiaryID"`
	UserID         string            `json:"userID"`
	DisplayName    string            `json:"displayName"`
	Country        string            `json:"country"`
	Currency       string            `json:"currency"`
	BankName       string            `json:"bankName,omitempty"`
	AccountNumber  string            `json:"accountNumber,omitempty"`
	IBAN           string            `json:"iban,omitempty"`
	MobileNumber   string            `json:"mobileNumber,omitempty"`
	MobileProvider string            `json:"mobileProvider,omitempty"`
	Status         BeneficiaryStatus `json:"status"`
	IsFavorite     bool              `json:"isFavorite"`
}

func (b Beneficiary) IsVerified() bool {
	return b.Status == BeneficiaryVerified
}
