// Package main provides the entry point for the bookvoice CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/bookvoice/internal/book"
	"github.com/dgnsrekt/bookvoice/ui"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	debug      bool
	startPage  int
	width      uint
	mouse      bool

	rootCmd = &cobra.Command{
		Use:   "bookvoice [BOOK]",
		Short: "Read books in the terminal, out loud",
		Long: paragraph(
			fmt.Sprintf("\nRead paged books in the terminal and %s with Gemini speech.", keyword("narrate them")),
		),
		Example:          paragraph("bookvoice book.yml\nbookvoice book.yml --page 12"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.ExactArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	// grab config values from Viper
	width = viper.GetUint("width")
	mouse = viper.GetBool("mouse")
	debug = debug || viper.GetBool("debug")

	// the reader owns the terminal, everything else may log to stderr
	if debug && cmd.HasParent() {
		logToStderr()
	}

	if startPage < 0 {
		return errors.New("--page must not be negative")
	}

	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	if !cmd.Flags().Changed("width") { //nolint:nestif
		if isTerminal && width == 0 {
			w, _, err := term.GetSize(int(os.Stdout.Fd()))
			if err == nil {
				width = uint(w) //nolint:gosec
			}

			if width > 120 {
				width = 120
			}
		}
		if width == 0 {
			width = 80
		}
	}
	return nil
}

// loadBook opens the book argument.
func loadBook(arg string) (*book.Book, string, error) {
	path, err := filepath.Abs(arg)
	if err != nil {
		return nil, "", fmt.Errorf("unable to get absolute path: %w", err)
	}
	b, err := book.Load(path)
	if err != nil {
		return nil, "", err
	}
	return b, path, nil
}

// envConfig reads runtime secrets and switches from the environment.
func envConfig() (ui.Config, error) {
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return ui.Config{}, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, nil
}

func execute(cmd *cobra.Command, args []string) error {
	b, path, err := loadBook(args[0])
	if err != nil {
		return err
	}
	if startPage > 0 {
		if _, err := b.Page(startPage); err != nil {
			return err
		}
	}
	return runTUI(cmd.Context(), b, path)
}

func runTUI(ctx context.Context, b *book.Book, path string) error {
	cfg, err := envConfig()
	if err != nil {
		return err
	}
	cfg.Path = path
	cfg.StartPage = startPage
	cfg.MaxWidth = width
	cfg.EnableMouse = mouse

	rt, err := newRuntime(ctx, b, cfg)
	if err != nil {
		return err
	}
	defer rt.shutdown() //nolint:errcheck

	// Run Bubble Tea program
	if _, err := ui.NewProgram(cfg, b, rt.session, rt.progressStore()).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return rt.shutdown()
}

func main() {
	cfg, _ := env.ParseAs[ui.Config]()
	closer, err := setupLog(cfg.Debug)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	debug = cfg.Debug
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "verbose logging (headless commands log to stderr)")
	rootCmd.Flags().IntVarP(&startPage, "page", "p", 0, "page to open on")
	rootCmd.Flags().UintVarP(&width, "width", "w", 0, "word-wrap at width (set to 0 to use the terminal width)")
	rootCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse wheel")
	_ = rootCmd.Flags().MarkHidden("mouse")

	// Config bindings
	_ = viper.BindPFlag("width", rootCmd.Flags().Lookup("width"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	viper.SetDefault("width", 0)
	viper.SetDefault("mouse", false)

	rootCmd.AddCommand(configCmd, manCmd, playCmd, textCmd, searchCmd, progressCmd, cacheCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "bookvoice")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "bookvoice")}, dirs...)
	}

	if c := os.Getenv("BOOKVOICE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("bookvoice")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("bookvoice")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "bookvoice.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
