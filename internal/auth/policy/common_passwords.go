package policy

// commonPasswords is a denylist of frequently used passwords, compared
// case-insensitively. Swap in a comprehensive list (SecLists or similar) for
// production deployments.
var commonPasswords = []string{
	"password", "password123", "12345678", "qwerty", "abc123",
	"monkey", "1234567", "letmein", "trustno1", "dragon",
	"baseball", "iloveyou", "master", "sunshine", "ashley",
	"bailey", "passw0rd", "shadow", "123123", "654321",
	"superman", "qazwsx", "michael", "football", "password1",
	"welcome1", "admin123", "changeme", "hospital", "siloam123",
}
