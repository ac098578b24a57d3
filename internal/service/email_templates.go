package service

import "fmt"

func verificationEmailTemplate(nickname, activateURL, appName string) (string, string) {
	subject := "Email address verification"
	body := fmt.Sprintf(`Hi %s,

Thanks for signing up to %s. Please confirm your email address by opening this link:
%s

If you didn't create an account, you can safely ignore this email.

Best,
The %s Team`, nickname, appName, activateURL, appName)

	return subject, body
}

func accountDeletedEmailTemplate(nickname, appName string) (string, string) {
	subject := fmt.Sprintf("Your %s account has been deleted", appName)
	body := fmt.Sprintf(`Hi %s,

Your account has been permanently deleted from %s.

Your sign-in history and linked login providers have been removed from our systems.

If you didn't request this deletion, please contact our support team immediately, though we won't be able to recover your account.

Best,
The %s Team`, nickname, appName, appName)

	return subject, body
}
