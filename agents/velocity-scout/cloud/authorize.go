package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// LoopbackAuthorizer runs the installed-application flow: it listens on a
// random localhost port, asks the user to open the consent page and waits
// for the redirect carrying the authorization code.
type LoopbackAuthorizer struct {
	Out io.Writer
}

func (a *LoopbackAuthorizer) Authorize(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	out := a.Out
	if out == nil {
		out = os.Stdout
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("unable to start local redirect listener: %w", err)
	}
	defer listener.Close()

	flowCfg := *cfg
	flowCfg.RedirectURL = fmt.Sprintf("http://%s/", listener.Addr().String())

	state := oauth2.GenerateVerifier()
	verifier := oauth2.GenerateVerifier()

	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)
	deliver := func(r result) {
		select {
		case results <- r:
		default:
		}
	}

	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		case q.Get("error") != "":
			fmt.Fprintln(w, "Authorization was denied. You can close this window.")
			deliver(result{err: fmt.Errorf("authorization denied: %s", q.Get("error"))})
		default:
			fmt.Fprintln(w, "Authorization complete. You can close this window.")
			deliver(result{code: q.Get("code")})
		}
	})}
	go server.Serve(listener)
	defer server.Close()

	authURL := flowCfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))
	fmt.Fprintf(out, "\n%s\n", strings.Repeat("=", 80))
	fmt.Fprintf(out, "GOOGLE DRIVE AUTHORIZATION REQUIRED\n")
	fmt.Fprintf(out, "%s\n", strings.Repeat("=", 80))
	fmt.Fprintf(out, "Open this link in your browser and grant access:\n\n   %s\n\n", authURL)
	fmt.Fprintf(out, "Waiting for authorization to complete... (Ctrl+C to cancel)\n")

	var res result
	select {
	case res = <-results:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, res.err
	}

	tok, err := flowCfg.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("unable to exchange authorization code: %w", err)
	}

	fmt.Fprintf(out, "\nAuthorization successful! Credential saved.\n")
	return tok, nil
}

// DeviceAuthorizer runs the device authorization flow, for machines without
// a local browser. The OAuth client must be of the "TVs and Limited Input
// devices" type.
type DeviceAuthorizer struct {
	Out io.Writer
}

func (a *DeviceAuthorizer) Authorize(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	out := a.Out
	if out == nil {
		out = os.Stdout
	}

	flowCfg := *cfg
	if flowCfg.Endpoint.DeviceAuthURL == "" {
		flowCfg.Endpoint.DeviceAuthURL = google.Endpoint.DeviceAuthURL
	}

	resp, err := flowCfg.DeviceAuth(ctx, oauth2.AccessTypeOffline)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("device authorization rejected (%s): %s", retrieveErr.Response.Status, strings.TrimSpace(string(retrieveErr.Body)))
		}
		return nil, fmt.Errorf("unable to start device authorization: %w", err)
	}

	fmt.Fprintf(out, "\n%s\n", strings.Repeat("=", 80))
	fmt.Fprintf(out, "GOOGLE DRIVE DEVICE AUTHORIZATION REQUIRED\n")
	fmt.Fprintf(out, "%s\n", strings.Repeat("=", 80))
	fmt.Fprintf(out, "1. Visit %s in your browser (any device works).\n", resp.VerificationURI)
	fmt.Fprintf(out, "2. Enter this code when prompted: %s\n\n", resp.UserCode)
	fmt.Fprintf(out, "Waiting for authorization to complete... (Ctrl+C to cancel)\n")
	fmt.Fprintf(out, "%s\n", strings.Repeat("-", 80))

	tok, err := flowCfg.DeviceAccessToken(ctx, resp, oauth2.AccessTypeOffline)
	if err != nil {
		return nil, fmt.Errorf("device authorization did not complete: %w", err)
	}

	fmt.Fprintf(out, "\nAuthorization successful! Credential saved.\n")
	return tok, nil
}
