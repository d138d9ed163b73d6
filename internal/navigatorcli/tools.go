package navigatorcli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/phillip-england/navigator/internal/clientapp"
	"github.com/phillip-england/navigator/internal/formbridge"
	"github.com/phillip-england/navigator/internal/smoke"
	"github.com/phillip-england/navigator/internal/store"
	"github.com/phillip-england/navigator/internal/timeline"
)

func (a *app) bridgeCommand() *cobra.Command {
	var (
		fields  []string
		apiURL  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "bridge <trigger>",
		Short: "Run one page trigger against the API and print what it renders",
		Long: `Loads the navigator page, fills the trigger's form from --field values,
sends the request the browser would send and prints the render target.`,
		Args: exactArgs(1, "navigator bridge <trigger> [--field name=value]..."),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if apiURL == "" {
				apiURL = cfg.APIBaseURL
			}
			values, err := parseFields(fields)
			if err != nil {
				return err
			}

			raw, err := clientapp.Page()
			if err != nil {
				return err
			}
			page, err := formbridge.ParsePage(bytes.NewReader(raw))
			if err != nil {
				return err
			}
			bridge, err := formbridge.New(page, strings.TrimRight(apiURL, "/"), formbridge.DefaultBindings(),
				formbridge.WithHTTPClient(&http.Client{Timeout: timeout}),
				formbridge.WithLogger(newLogger(cmd.ErrOrStderr(), cfg)),
			)
			if err != nil {
				return err
			}

			trigger := args[0]
			binding, ok := bridge.Binding(trigger)
			if !ok {
				return fmt.Errorf("%w: unknown trigger %q (one of %s)", ErrUsage, trigger, strings.Join(bridge.Triggers(), ", "))
			}
			if binding.Kind == formbridge.Submit {
				form, err := bridge.Form(trigger)
				if err != nil {
					return err
				}
				if err := form.Fill(values); err != nil {
					return err
				}
			} else if len(values) > 0 {
				return fmt.Errorf("%w: --field only applies to form triggers", ErrUsage)
			}

			if err := bridge.Dispatch(cmd.Context(), trigger, &formbridge.SubmitEvent{}); err != nil {
				return err
			}
			target, err := page.Element(binding.Target)
			if err != nil {
				return err
			}
			out := target.Text()
			if target.Tag() == "a" {
				out, _ = target.Attr("href")
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&fields, "field", nil, "form value as name=value (repeatable)")
	cmd.Flags().StringVar(&apiURL, "api", "", "API base URL (default API_BASE_URL)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	return cmd
}

func parseFields(fields []string) (url.Values, error) {
	values := url.Values{}
	for _, f := range fields {
		name, value, ok := strings.Cut(f, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: --field %q must be name=value", ErrUsage, f)
		}
		values.Add(strings.TrimSpace(name), value)
	}
	return values, nil
}

func (a *app) timelineCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Manage the application timeline",
		Args:  exactArgs(0, "navigator timeline import <file>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("%w: navigator timeline import <file>", ErrUsage)
		},
	}

	var (
		direct bool
		apiURL string
	)
	importCmd := &cobra.Command{
		Use:   "import <file.xlsx|file.xls>",
		Short: "Replace the timeline with the events in a spreadsheet",
		Args:  exactArgs(1, "navigator timeline import <file> [--db] [--api url]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			path := args[0]

			var n int
			if direct {
				n, err = importToStore(cmd, cfg.DBDSN, path)
			} else {
				if apiURL == "" {
					apiURL = cfg.APIBaseURL
				}
				n, err = importToAPI(cmd, strings.TrimRight(apiURL, "/"), path)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d events\n", n)
			return nil
		},
	}
	importCmd.Flags().BoolVar(&direct, "db", false, "write to DB_DSN instead of going through the API")
	importCmd.Flags().StringVar(&apiURL, "api", "", "API base URL (default API_BASE_URL)")
	cmd.AddCommand(importCmd)
	return cmd
}

func importToStore(cmd *cobra.Command, dsn, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	events, err := timeline.ParseSpreadsheet(f, filepath.Base(path))
	if err != nil {
		return 0, err
	}
	if err := ensureDBDir(dsn); err != nil {
		return 0, err
	}
	db, err := store.Open(cmd.Context(), dsn)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	if err := db.ReplaceEvents(cmd.Context(), events); err != nil {
		return 0, err
	}
	return len(events), nil
}

func importToAPI(cmd *cobra.Command, apiURL, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return 0, err
	}
	if _, err := part.Write(data); err != nil {
		return 0, err
	}
	if err := mw.Close(); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, apiURL+"/api/timeline/import", &body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := (&http.Client{Timeout: 30 * time.Second}).Do(req)
	if err != nil {
		return 0, fmt.Errorf("upload timeline: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	var payload struct {
		Events []timeline.Event `json:"events"`
		Error  string           `json:"error"`
	}
	_ = json.Unmarshal(raw, &payload)
	if resp.StatusCode != http.StatusOK {
		msg := payload.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return 0, fmt.Errorf("upload timeline: %d %s: %s", resp.StatusCode, http.StatusText(resp.StatusCode), msg)
	}
	return len(payload.Events), nil
}

func (a *app) smokeCommand() *cobra.Command {
	var (
		siteURL string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Drive the running client page in headless Chrome",
		Args:  exactArgs(0, "navigator smoke [--url url]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if siteURL == "" {
				siteURL = "http://localhost" + cfg.ClientAddr
			}
			res, err := smoke.Check(cmd.Context(), siteURL, timeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "smoke ok: translate-result=%q\n", res.Translation)
			return nil
		},
	}
	cmd.Flags().StringVar(&siteURL, "url", "", "client URL (default http://localhost$CLIENT_ADDR)")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "overall browser timeout")
	return cmd
}
