// -- cmd/visit.go --
package cmd

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cicerone-dev/cicerone/internal/observability"
	"github.com/cicerone-dev/cicerone/pkg/driver"
	"github.com/cicerone-dev/cicerone/pkg/driver/cdp"
)

var (
	visitEval       string
	visitScreenshot string
	visitFullPage   bool
	visitHeaded     bool
)

// visitCmd navigates a fresh browser session to a URL and optionally
// evaluates a script or captures a screenshot before quitting.
var visitCmd = &cobra.Command{
	Use:   "visit <url>",
	Short: "Open a page, optionally evaluate a script or take a screenshot.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVisit(cmd, args[0])
	},
}

func init() {
	visitCmd.Flags().StringVar(&visitEval, "eval", "", "JavaScript expression to evaluate after the page loads")
	visitCmd.Flags().StringVar(&visitScreenshot, "screenshot", "", "write a screenshot of the page to this path")
	visitCmd.Flags().BoolVar(&visitFullPage, "full-page", false, "capture the full scrollable page in the screenshot")
	visitCmd.Flags().BoolVar(&visitHeaded, "headed", false, "launch the browser with a visible window")
	rootCmd.AddCommand(visitCmd)
}

func runVisit(cmd *cobra.Command, url string) error {
	ctx := cmd.Context()
	log := observability.GetLogger()

	browserCfg := appCfg.Browser()
	sessionCfg := appCfg.Session()
	if visitHeaded {
		browserCfg.Headless = false
	}

	connector := cdp.Connector(cdp.Config{
		Headless:        browserCfg.Headless,
		IgnoreTLSErrors: browserCfg.IgnoreTLSErrors,
		WindowWidth:     browserCfg.WindowWidth,
		WindowHeight:    browserCfg.WindowHeight,
		RemoteHost:      browserCfg.RemoteHost,
		RemotePort:      browserCfg.RemotePort,
		ProxyServer:     browserCfg.ProxyServer,
		Extensions:      browserCfg.Extensions,
		Args:            browserCfg.Args,
		LaunchTimeout:   browserCfg.LaunchTimeout,
	}, log)

	opts := driver.Options{
		Logger:       log.Named("driver"),
		Connect:      connector,
		MaxWait:      sessionCfg.MaxWait,
		AppHost:      sessionCfg.AppHost,
		InspectorURL: sessionCfg.InspectorURL,
		URLAllowlist: sessionCfg.URLAllowlist,
		URLBlocklist: sessionCfg.URLBlocklist,
	}
	if sessionCfg.RaiseJSErrors {
		raise := true
		opts.RaiseJSErrors = &raise
	}
	if sessionCfg.ScreenWidth > 0 && sessionCfg.ScreenHeight > 0 {
		opts.ScreenSize = &driver.Size{Width: sessionCfg.ScreenWidth, Height: sessionCfg.ScreenHeight}
	}

	d := driver.New(opts)
	defer func() {
		if err := d.Quit(ctx); err != nil {
			log.Warn("browser shutdown", zap.Error(err))
		}
	}()

	sess, err := d.Browser(ctx)
	if err != nil {
		return err
	}
	if err := sess.Visit(ctx, url); err != nil {
		return err
	}
	log.Info("page loaded", zap.String("url", url))

	if visitEval != "" {
		result, err := sess.Evaluate(ctx, visitEval)
		if err != nil {
			return err
		}
		out, err := jsoniter.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("rendering evaluation result: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	}

	if visitScreenshot != "" {
		err := sess.SaveScreenshot(ctx, visitScreenshot, driver.ScreenshotOptions{FullPage: visitFullPage})
		if err != nil {
			return err
		}
		log.Info("screenshot written", zap.String("path", visitScreenshot))
	}
	return nil
}
