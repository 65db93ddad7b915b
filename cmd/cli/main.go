// Command oc is a CLI client for the offer-chat service.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/and161185/offer-chat/internal/api"
	"github.com/and161185/offer-chat/internal/auth"
	grpcserver "github.com/and161185/offer-chat/internal/server/grpc"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "offerchat")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "offerchat")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tf tokenFile) error {
	_ = os.MkdirAll(cfgDir(), 0o700)
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tf)
}

func loadToken() (tokenFile, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return tokenFile{}, err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return tokenFile{}, err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return tokenFile{}, errors.New("no valid token (login required)")
	}
	return tf, nil
}

// inspectToken reads subject and expiry without verifying the signature;
// the server does the verification.
func inspectToken(tok string) (tokenFile, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return tokenFile{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return tokenFile{}, errors.New("token has no subject")
	}
	exp := time.Now().Add(15 * time.Minute)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return tokenFile{AccessToken: tok, UserID: claims.Subject, ExpiresAt: exp}, nil
}

// ---- transport ----

type bearerCreds struct {
	token  string
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

func tlsConfig(caPath string, skipVerify bool) (*tls.Config, error) {
	if skipVerify {
		return &tls.Config{InsecureSkipVerify: true}, nil //nolint:gosec // dev flag
	}
	if caPath == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return &tls.Config{RootCAs: pool}, nil
}

func loadTLS(caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	cfg, err := tlsConfig(caPath, skipVerify)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	return credentials.NewTLS(cfg), nil
}

type globals struct {
	addr      string
	httpBase  string
	caPath    string
	insecure  bool
	plaintext bool
}

func (g globals) dial(ctx context.Context, bearer string) (*grpc.ClientConn, *grpcserver.MarketClient, error) {
	var creds credentials.TransportCredentials
	if g.plaintext {
		creds = insecure.NewCredentials()
	} else {
		c, err := loadTLS(g.caPath, g.insecure)
		if err != nil {
			return nil, nil, err
		}
		creds = c
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if bearer != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: bearer, secure: !g.plaintext}))
	}
	//nolint:staticcheck // DialContext is supported through 1.x; migrate when grpc.NewClient is stable
	cc, err := grpc.DialContext(ctx, g.addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	return cc, grpcserver.NewMarketClient(cc), nil
}

func (g globals) httpClient() (*http.Client, error) {
	cfg, err := tlsConfig(g.caPath, g.insecure)
	if err != nil {
		return nil, err
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = cfg
	return &http.Client{Transport: tr, Timeout: 15 * time.Second}, nil
}

// wsURL derives the WebSocket endpoint from the HTTP base URL.
func wsURL(httpBase string) string {
	base := strings.TrimRight(httpBase, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func formatMessage(m api.Message) string {
	who := m.SenderID
	if m.Sender != nil && m.Sender.FirstName != "" {
		who = strings.TrimSpace(m.Sender.FirstName + " " + m.Sender.LastName)
	}
	return fmt.Sprintf("[%s] %s: %s", m.CreatedAt.Local().Format("2006-01-02 15:04:05"), who, m.Content)
}

func usage() {
	fmt.Fprintf(os.Stderr, `oc CLI
Usage:
  oc [-addr HOST:PORT] [-http URL] [-cacert file | -insecure | -plaintext] <cmd> [args]

Commands:
  version
  login         -token <jwt>                          (saves token)
  mint          -key <hs256 key> -sub <user id> [-first f] [-last l] [-ttl 24h] [-save]
  product-add   -name <name> -desc <text> -price <cents>
  product       -id <uuid>
  offer         -product <uuid> -amount <cents> [-m <text>]
  offers        [-sent]
  accept        -id <offer uuid>                      (prints conversation id)
  reject        -id <offer uuid>
  conversations
  messages      -c <conversation uuid>
  send          -c <conversation uuid> -m <text>
  watch         -c <conversation uuid>                (live timeline until Ctrl-C)
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands and configures TLS/auth for calls.
func main() {
	// global flags
	var g globals
	flag.StringVar(&g.addr, "addr", "localhost:8443", "gRPC server addr")
	flag.StringVar(&g.httpBase, "http", "http://localhost:8080", "HTTP base URL")
	flag.StringVar(&g.caPath, "cacert", "", "CA cert (PEM)")
	flag.BoolVar(&g.insecure, "insecure", false, "skip cert verify (dev)")
	flag.BoolVar(&g.plaintext, "plaintext", false, "gRPC without TLS (dev)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	if cmd == "watch" {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := watch(ctx, g, args); err != nil && !errors.Is(err, context.Canceled) {
			fail(err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch cmd {
	case "version":
		fmt.Printf("oc %s (%s)\n", version, buildDate)
	case "login":
		err = login(args)
	case "mint":
		err = mint(args)
	case "product-add", "product", "offer", "offers", "accept", "reject":
		err = market(ctx, g, cmd, args)
	case "conversations", "messages", "send":
		err = chat(ctx, g, cmd, args)
	default:
		usage()
	}
	if err != nil {
		fail(err)
	}
}

func login(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	tok := fs.String("token", "", "bearer JWT")
	_ = fs.Parse(args)
	if *tok == "" {
		return errors.New("need -token")
	}
	tf, err := inspectToken(strings.TrimSpace(*tok))
	if err != nil {
		return err
	}
	if err := saveToken(tf); err != nil {
		return err
	}
	fmt.Println("ok", tf.UserID)
	return nil
}

func mint(args []string) error {
	fs := flag.NewFlagSet("mint", flag.ExitOnError)
	key := fs.String("key", "", "HS256 key shared with the server")
	sub := fs.String("sub", "", "user id")
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	save := fs.Bool("save", false, "store the token like login")
	_ = fs.Parse(args)
	if *key == "" || *sub == "" {
		return errors.New("need -key and -sub")
	}
	tok, err := auth.Issue([]byte(*key), auth.Identity{UserID: *sub, FirstName: *first, LastName: *last}, *ttl)
	if err != nil {
		return err
	}
	if *save {
		if err := saveToken(tokenFile{AccessToken: tok, UserID: *sub, ExpiresAt: time.Now().Add(*ttl)}); err != nil {
			return err
		}
	}
	fmt.Println(tok)
	return nil
}

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
