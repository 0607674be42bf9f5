package ledger

import "fmt"

func creditEmail(r *CreditResult, baseURL string) (subject, body string) {
	loginURL := fmt.Sprintf("%s/?auth=%s", baseURL, r.Code)

	if r.NewAccount {
		subject = "Welcome to Superfun Draw! Your tokens are ready"
		body = fmt.Sprintf(`Hi there!

Welcome to Superfun Draw! Your purchase went through:

Tokens added: %d
Total tokens: %d
One-time login code: %s

Click here to log in and start creating:
%s

Or visit the site and enter your code directly.

Happy drawing!
- The Superfun Draw Team

P.S. This code can only be used once. You'll get a new one with your next purchase.`,
			r.NewBalance-r.PreviousBalance, r.NewBalance, r.Code, loginURL)
		return subject, body
	}

	subject = fmt.Sprintf("Your Superfun Draw tokens are ready! (%d tokens)", r.NewBalance)
	body = fmt.Sprintf(`Hi there!

Thanks for getting more tokens for Superfun Draw!

Tokens added: %d
New balance: %d
One-time login code: %s

Click here to log in and continue creating:
%s

Happy drawing!
- The Superfun Draw Team

P.S. This code can only be used once. You'll get a new one with your next purchase.`,
		r.NewBalance-r.PreviousBalance, r.NewBalance, r.Code, loginURL)
	return subject, body
}

func loginEmail(balance int64, code string, newAccount bool, welcomeBonus int64, baseURL string) (subject, body string) {
	loginURL := fmt.Sprintf("%s/?auth=%s", baseURL, code)

	if newAccount {
		subject = fmt.Sprintf("Welcome to Superfun Draw! (%d tokens included)", welcomeBonus)
		body = fmt.Sprintf(`Hi there!

Welcome to Superfun Draw! We've created your account and given you some tokens to get started.

Welcome bonus: %d tokens
One-time login code: %s

Click here to log in and start creating:
%s

Happy drawing!
- The Superfun Draw Team

P.S. This code can only be used once. You can purchase more tokens anytime from your account.`,
			welcomeBonus, code, loginURL)
		return subject, body
	}

	subject = fmt.Sprintf("Your Superfun Draw login link (%d tokens available)", balance)
	body = fmt.Sprintf(`Hi there!

Here's your login link for Superfun Draw!

Current tokens: %d
One-time login code: %s

Click here to log in and continue creating:
%s

Happy drawing!
- The Superfun Draw Team

P.S. This code can only be used once. Need more tokens? You can purchase them from your account.`,
		balance, code, loginURL)
	return subject, body
}
