package ports

import "time"

// Tokenizer mints and parses the bearer tokens handed out on wallet connect.
type Tokenizer interface {
	Mint(address string, now time.Time) (string, error)
	// Parse validates the token and returns the wallet address it was minted for.
	Parse(token string) (string, error)
}
