// Command cbdauth prints a bearer token for the Business Dashboard v2 API, or
// checks one with --verify.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	flags "github.com/jessevdk/go-flags"

	"cbd-eventstream/internal/cbdauth"
)

var BuildVersion = "dev"

type options struct {
	Version  bool   `long:"version" description:"Show program's version number and exit"`
	ClientID string `short:"c" long:"clientid" description:"The ID for this instance of the client application. A random UUID is generated when unset."`
	Name     string `short:"n" long:"name" default:"cbdauth.example.com" description:"The name to use for the client application"`
	AppVer   string `short:"v" long:"appver" default:"1.0" description:"The version string to use for the client application"`
	Lifetime int    `short:"l" long:"lifetime" default:"3600" description:"The duration in seconds the token will remain valid"`
	Verify   string `long:"verify" value-name:"TOKEN" description:"Check TOKEN against the secret instead of issuing one"`

	Args struct {
		KeyID  string `positional-arg-name:"keyid" description:"The ID of the Access Key"`
		Secret string `positional-arg-name:"secret" description:"The secret value of the Access Key"`
	} `positional-args:"yes"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts := options{}
	parser := flags.NewParser(&opts, flags.HelpFlag)
	parser.Name = "cbdauth"
	parser.Usage = "[OPTIONS] keyid secret"
	if _, err := parser.ParseArgs(args); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			fmt.Fprintln(stdout, err)
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}
	if opts.Version {
		fmt.Fprintln(stdout, "cbdauth", BuildVersion)
		return 0
	}

	if opts.Verify != "" {
		// keyid is optional when verifying; a lone positional is the secret.
		secret := opts.Args.Secret
		if secret == "" {
			secret = opts.Args.KeyID
		}
		if secret == "" {
			fmt.Fprintln(stderr, "the access key secret is required")
			return 2
		}
		return verify(strings.TrimSpace(opts.Verify), secret, stdout, stderr)
	}

	if opts.Args.KeyID == "" || opts.Args.Secret == "" {
		fmt.Fprintln(stderr, "the keyid and secret arguments are required")
		return 2
	}
	clientID := strings.TrimSpace(opts.ClientID)
	if clientID == "" {
		clientID = uuid.NewString()
	}
	token, err := cbdauth.Issue(opts.Args.KeyID, opts.Args.Secret, clientID, opts.Name, opts.AppVer,
		time.Duration(opts.Lifetime)*time.Second, time.Now())
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintln(stdout, token.Raw)
	return 0
}

func verify(raw, secret string, stdout, stderr io.Writer) int {
	token, err := cbdauth.Verify(raw, secret, time.Now())
	if err != nil {
		fmt.Fprintln(stderr, "token is not valid:", err)
		return 1
	}
	fmt.Fprintf(stdout, "kid:     %s\n", token.KeyID)
	fmt.Fprintf(stdout, "iss:     %s\n", token.Claims.Issuer)
	fmt.Fprintf(stdout, "cid:     %s\n", token.Claims.ClientID)
	fmt.Fprintf(stdout, "appver:  %s\n", token.Claims.AppVersion)
	fmt.Fprintf(stdout, "expires: %s (in %s)\n",
		token.ExpiresAt().UTC().Format(time.RFC3339),
		time.Until(token.ExpiresAt()).Round(time.Second))
	return 0
}
