package domain

// MFASetupResponse carries the provisioning material for an authenticator
// app. The manual key is the plaintext base32 seed, shown once to the caller
// and never retrievable again.
type MFASetupResponse struct {
	ProvisioningURI string // otpauth:// URL for QR rendering
	ManualKey       string // base32 seed for manual entry
	Issuer          string
	Account         string // account label embedded in the URI
}

// MFA challenge methods accepted at login time.
const (
	MFAMethodTOTP         = "totp"
	MFAMethodRecoveryCode = "recovery_code"
)
