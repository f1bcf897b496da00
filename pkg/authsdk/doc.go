/*
Package authsdk is the Go client for the warden authentication service and
holds the wire types the service itself encodes.

# Client vs Session

Client exposes every public endpoint and the token-taking variants of the
authenticated ones. Session wraps a token pair and refreshes it when the
access token is about to expire:

	client := authsdk.NewClient("https://auth.example.com")

	session, err := client.AuthenticateWithPassword(ctx, "ada@example.com", password)
	var challenge *authsdk.MFARequiredError
	if errors.As(err, &challenge) {
		session, err = client.AuthenticateWithMFA(ctx, challenge, "totp", code)
	}
	if err != nil {
		return err
	}

	profile, err := session.Validate(ctx)

# Refresh

Refresh tokens are single use: every refresh returns a new pair and the old
refresh token is rejected afterwards. A Session serialises refreshes so
concurrent callers never race each other into a revoked token.

# Permissions

Administration endpoints require permissions such as "roles:write". Sessions
check the profile delivered with the tokens before sending a request; set
Client.CheckPermissions to false to leave the decision to the server.

# Errors

Every non-2xx response is returned as *APIError. The Code field holds the
stable machine-readable code (see the ErrorCode constants); a locked account
also carries LockedUntil and a validation failure carries Fields:

	_, err := client.Login(ctx, email, password)
	switch authsdk.ErrorCode(err) {
	case authsdk.ErrorCodeAccountLocked:
		var apiErr *authsdk.APIError
		errors.As(err, &apiErr)
		fmt.Println("locked until", apiErr.LockedUntil)
	case authsdk.ErrorCodeInvalidCredentials:
		// wrong email or password
	}
*/
package authsdk
