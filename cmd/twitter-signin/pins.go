package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/url"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/twitter-signin/internal/app"
	"github.com/dropDatabas3/twitter-signin/internal/config"
	"github.com/dropDatabas3/twitter-signin/internal/security/certpin"
)

// probeResult es lo que presenta un endpoint y qué decide el validador.
type probeResult struct {
	Addr    string
	Subject []string
	SKIs    []string
	Err     error // dial
	Verdict error // nil = aceptado
}

func newPinsCmd(configPath *string) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "pins",
		Short: "Conecta a los endpoints backchannel, muestra los SKIs presentados y si el validador los acepta",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			v, err := app.NewValidator(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			results, err := probeEndpoints(ctx, v, cfg.Endpoints().RequestTokenURL, cfg.Endpoints().AccessTokenURL)
			if err != nil {
				return err
			}
			if rejected := printProbe(cmd.OutOrStdout(), results); rejected > 0 {
				return fmt.Errorf("%d endpoint(s) rechazados por la política %s", rejected, v.Policy())
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "Timeout total del sondeo")
	return cmd
}

// probeEndpoints conecta en paralelo a cada host:port distinto de endpoints.
// El handshake se hace sin verificación para poder mostrar la cadena; la decisión
// es siempre la de v.Validate.
func probeEndpoints(ctx context.Context, v *certpin.Validator, endpoints ...string) ([]probeResult, error) {
	addrs, err := uniqueAddrs(endpoints)
	if err != nil {
		return nil, err
	}

	results := make([]probeResult, len(addrs))
	g, gctx := errgroup.WithContext(ctx)
	for i, addr := range addrs {
		i, addr := i, addr
		g.Go(func() error {
			results[i] = probe(gctx, v, addr)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func probe(ctx context.Context, v *certpin.Validator, addr string) probeResult {
	res := probeResult{Addr: addr}
	host, _, _ := net.SplitHostPort(addr)
	d := &tls.Dialer{Config: &tls.Config{
		ServerName:         host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true, //nolint:gosec // solo inspección; la decisión la toma v.Validate
	}}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		res.Err = err
		return res
	}
	defer conn.Close()

	chain := conn.(*tls.Conn).ConnectionState().PeerCertificates
	for _, c := range chain {
		res.Subject = append(res.Subject, c.Subject.CommonName)
		res.SKIs = append(res.SKIs, certpin.SubjectKeyID(c))
	}
	res.Verdict = v.Validate(chain, host)
	return res
}

func uniqueAddrs(endpoints []string) ([]string, error) {
	seen := map[string]struct{}{}
	for _, e := range endpoints {
		u, err := url.Parse(e)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			return nil, fmt.Errorf("endpoint inválido %q", e)
		}
		port := u.Port()
		if port == "" {
			port = "443"
		}
		seen[net.JoinHostPort(u.Hostname(), port)] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out, nil
}

// printProbe escribe el reporte y devuelve cuántos endpoints no pasaron.
func printProbe(w io.Writer, results []probeResult) int {
	rejected := 0
	for _, r := range results {
		if r.Err != nil {
			rejected++
			fmt.Fprintf(w, "%s\tERROR\t%v\n", r.Addr, r.Err)
			continue
		}
		verdict := "ACCEPTED"
		if r.Verdict != nil {
			verdict = "REJECTED"
			rejected++
		}
		fmt.Fprintf(w, "%s\t%s\n", r.Addr, verdict)
		for i := range r.SKIs {
			fmt.Fprintf(w, "  [%d] %s\tski=%s\n", i, r.Subject[i], r.SKIs[i])
		}
		if r.Verdict != nil {
			fmt.Fprintf(w, "  reason: %v\n", r.Verdict)
		}
	}
	return rejected
}
