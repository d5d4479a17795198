package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// LoopbackAuthorizer runs the installed-app consent flow. It listens on an
// ephemeral 127.0.0.1 port, prints the consent URL to out and waits for the
// redirect carrying the authorization code.
func LoopbackAuthorizer(out io.Writer) AuthorizeFunc {
	return func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, fmt.Errorf("failed to start loopback listener: %w", err)
		}

		flow := *cfg
		flow.RedirectURL = fmt.Sprintf("http://%s/", ln.Addr().String())

		state := uuid.NewString()
		verifier := oauth2.GenerateVerifier()

		codes := make(chan string, 1)
		errs := make(chan error, 1)
		srv := &http.Server{
			ReadHeaderTimeout: 10 * time.Second,
			Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				switch {
				case q.Get("state") != state:
					http.Error(w, "state mismatch", http.StatusBadRequest)
					return
				case q.Get("error") != "":
					http.Error(w, "authorization denied", http.StatusForbidden)
					report(errs, fmt.Errorf("authorization denied: %s", q.Get("error")))
					return
				case q.Get("code") == "":
					http.Error(w, "missing code", http.StatusBadRequest)
					return
				}
				_, _ = io.WriteString(w, "Authorization complete. You can close this window.\n")
				select {
				case codes <- q.Get("code"):
				default:
				}
			}),
		}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				report(errs, err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		url := flow.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))
		fmt.Fprintf(out, "Open the following URL in your browser to authorize access:\n%s\n", url)

		var code string
		select {
		case code = <-codes:
		case err := <-errs:
			return nil, err
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		tok, err := flow.Exchange(ctx, code, oauth2.VerifierOption(verifier))
		if err != nil {
			return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
		}
		return tok, nil
	}
}

func report(errs chan<- error, err error) {
	select {
	case errs <- err:
	default:
	}
}
