package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/PyPartners/MindVault/internal/backup"
	"github.com/PyPartners/MindVault/internal/config"
	"github.com/PyPartners/MindVault/internal/passutil"
	"github.com/PyPartners/MindVault/internal/platform"
	"github.com/PyPartners/MindVault/internal/search"
	"github.com/PyPartners/MindVault/internal/session"
	"github.com/PyPartners/MindVault/internal/totp"
	"github.com/PyPartners/MindVault/internal/vault"
)

const clipboardTTL = 30 * time.Second

func main() {
	platform.DisableCoreDumps()

	// ---- init ----
	initCmd := flag.NewFlagSet("init", flag.ExitOnError)
	initVault := initCmd.String("vault", defaultVaultPath(), "path to vault file")

	// ---- add ----
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	addVault := addCmd.String("vault", defaultVaultPath(), "path to vault file")
	addSite := addCmd.String("site", "", "site name")
	addUser := addCmd.String("user", "", "username")
	addPass := addCmd.String("pass", "", "password or gen:N to generate N chars")
	addNotes := addCmd.String("notes", "", "free-form notes")

	// ---- list ----
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	listVault := listCmd.String("vault", defaultVaultPath(), "path to vault file")
	listJSON := listCmd.Bool("json", false, "print entries as JSON")

	// ---- find ----
	findCmd := flag.NewFlagSet("find", flag.ExitOnError)
	findVault := findCmd.String("vault", defaultVaultPath(), "path to vault file")
	findQuery := findCmd.String("q", "", "free-text query over site, username and notes")

	// ---- get ----
	getCmd := flag.NewFlagSet("get", flag.ExitOnError)
	getVault := getCmd.String("vault", defaultVaultPath(), "path to vault file")
	getID := getCmd.String("id", "", "entry id")
	getSite := getCmd.String("site", "", "match by site name instead of id")
	getCopy := getCmd.Bool("copy", false, "copy the password to the clipboard instead of printing it")

	// ---- set ----
	setCmd := flag.NewFlagSet("set", flag.ExitOnError)
	setVault := setCmd.String("vault", defaultVaultPath(), "path to vault file")
	setID := setCmd.String("id", "", "entry id")
	setUser := setCmd.String("user", "", "new username (empty keeps current)")
	setPass := setCmd.String("pass", "", "new password or gen:N (empty keeps current)")
	setNotes := setCmd.String("notes", "", "new notes (empty keeps current)")

	// ---- rm ----
	rmCmd := flag.NewFlagSet("rm", flag.ExitOnError)
	rmVault := rmCmd.String("vault", defaultVaultPath(), "path to vault file")
	rmID := rmCmd.String("id", "", "entry id")

	// ---- gen ----
	genCmd := flag.NewFlagSet("gen", flag.ExitOnError)
	genLen := genCmd.Int("len", 20, "password length")
	genNoUpper := genCmd.Bool("no-upper", false, "exclude uppercase letters")
	genNoDigits := genCmd.Bool("no-digits", false, "exclude digits")
	genNoSymbols := genCmd.Bool("no-symbols", false, "exclude symbols")

	// ---- dups ----
	dupsCmd := flag.NewFlagSet("dups", flag.ExitOnError)
	dupsVault := dupsCmd.String("vault", defaultVaultPath(), "path to vault file")

	// ---- 2fa ----
	tfaCmd := flag.NewFlagSet("2fa", flag.ExitOnError)
	tfaVault := tfaCmd.String("vault", defaultVaultPath(), "path to vault file")
	tfaEnable := tfaCmd.Bool("enable", false, "enroll a TOTP second factor")
	tfaDisable := tfaCmd.Bool("disable", false, "remove the TOTP enrollment")

	// ---- passwd ----
	passwdCmd := flag.NewFlagSet("passwd", flag.ExitOnError)
	passwdVault := passwdCmd.String("vault", defaultVaultPath(), "path to vault file")

	// ---- export ----
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	exportVault := exportCmd.String("vault", defaultVaultPath(), "path to vault file")
	exportOut := exportCmd.String("out", "mindvault-backup.mvb", "bundle to write")

	// ---- import ----
	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	importVault := importCmd.String("vault", defaultVaultPath(), "path to vault file")
	importIn := importCmd.String("in", "", "bundle to restore")

	if len(os.Args) < 2 {
		usage()
		return
	}

	log := newLogger()

	switch os.Args[1] {
	case "init":
		_ = initCmd.Parse(os.Args[2:])
		dieIf(cmdInit(log, *initVault))

	case "add":
		_ = addCmd.Parse(os.Args[2:])
		dieIf(cmdAdd(log, *addVault, *addSite, *addUser, *addPass, *addNotes))

	case "list":
		_ = listCmd.Parse(os.Args[2:])
		dieIf(cmdList(log, *listVault, *listJSON))

	case "find":
		_ = findCmd.Parse(os.Args[2:])
		dieIf(cmdFind(log, *findVault, *findQuery))

	case "get":
		_ = getCmd.Parse(os.Args[2:])
		dieIf(cmdGet(log, *getVault, *getID, *getSite, *getCopy))

	case "set":
		_ = setCmd.Parse(os.Args[2:])
		dieIf(cmdSet(log, *setVault, *setID, *setUser, *setPass, *setNotes))

	case "rm":
		_ = rmCmd.Parse(os.Args[2:])
		dieIf(cmdRm(log, *rmVault, *rmID))

	case "gen":
		_ = genCmd.Parse(os.Args[2:])
		dieIf(cmdGen(*genLen, passutil.Classes{
			Upper:   !*genNoUpper,
			Lower:   true,
			Digits:  !*genNoDigits,
			Symbols: !*genNoSymbols,
		}))

	case "dups":
		_ = dupsCmd.Parse(os.Args[2:])
		dieIf(cmdDups(log, *dupsVault))

	case "2fa":
		_ = tfaCmd.Parse(os.Args[2:])
		dieIf(cmdTwoFactor(log, *tfaVault, *tfaEnable, *tfaDisable))

	case "passwd":
		_ = passwdCmd.Parse(os.Args[2:])
		dieIf(cmdPasswd(log, *passwdVault))

	case "export":
		_ = exportCmd.Parse(os.Args[2:])
		dieIf(backup.Export(*exportOut, *exportVault, settingsPathFor(*exportVault)))
		fmt.Println("Backup written:", *exportOut)

	case "import":
		_ = importCmd.Parse(os.Args[2:])
		dieIf(cmdImport(*importIn, *importVault))

	default:
		usage()
	}
}

// ============ Commands ============

func cmdInit(log zerolog.Logger, vaultPath string) error {
	if err := os.MkdirAll(filepath.Dir(vaultPath), 0o700); err != nil {
		return err
	}
	secret, err := promptNewSecret("Master password: ")
	if err != nil {
		return err
	}
	defer zero(secret)

	s := newSession(log, vaultPath)
	if err := s.CreateVault(secret); err != nil {
		return err
	}
	defer s.Lock()
	fmt.Println("Vault created:", vaultPath)
	return nil
}

func cmdAdd(log zerolog.Logger, vaultPath, site, user, pass, notes string) error {
	if site == "" || user == "" || pass == "" {
		return errors.New("--site, --user and --pass required")
	}
	pass, err := expandGen(pass)
	if err != nil {
		return err
	}

	s, err := unlockInteractive(log, vaultPath)
	if err != nil {
		return err
	}
	defer s.Lock()

	e, err := s.AddEntry(site, user, pass, notes)
	if err != nil {
		return err
	}
	fmt.Println("Added entry id:", e.ID)
	return nil
}

func cmdList(log zerolog.Logger, vaultPath string, asJSON bool) error {
	s, err := unlockInteractive(log, vaultPath)
	if err != nil {
		return err
	}
	defer s.Lock()

	entries, err := s.Entries()
	if err != nil {
		return err
	}
	if asJSON {
		type row struct {
			ID       string `json:"id"`
			Site     string `json:"site"`
			Username string `json:"username"`
		}
		rows := make([]row, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, row{ID: e.ID, Site: e.Site, Username: e.Username})
		}
		b, _ := json.MarshalIndent(rows, "", "  ")
		fmt.Println(string(b))
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %-30s %s\n", e.ID, e.Site, e.Username)
	}
	return nil
}

func cmdFind(log zerolog.Logger, vaultPath, query string) error {
	s, err := unlockInteractive(log, vaultPath)
	if err != nil {
		return err
	}
	defer s.Lock()

	entries, err := s.Entries()
	if err != nil {
		return err
	}
	for _, e := range search.Filter(entries, query) {
		fmt.Printf("%s  %-30s %s\n", e.ID, e.Site, e.Username)
	}
	return nil
}

func cmdGet(log zerolog.Logger, vaultPath, id, site string, copyToClipboard bool) error {
	if id == "" && site == "" {
		return errors.New("--id or --site required")
	}

	s, err := unlockInteractive(log, vaultPath)
	if err != nil {
		return err
	}
	defer s.Lock()

	e, err := findEntry(s, id, site)
	if err != nil {
		return err
	}

	if copyToClipboard {
		if _, err := platform.CopyWithClear(platform.NewClipboard(), e.Password, clipboardTTL); err != nil {
			return fmt.Errorf("clipboard: %w", err)
		}
		fmt.Printf("Password for %s copied, clearing in %s\n", e.Site, clipboardTTL)
		// The clear runs in this process; stay alive until it has fired.
		time.Sleep(clipboardTTL + 100*time.Millisecond)
		return nil
	}

	b, _ := json.MarshalIndent(e, "", "  ")
	fmt.Println(string(b))
	return nil
}

func cmdSet(log zerolog.Logger, vaultPath, id, user, pass, notes string) error {
	if id == "" {
		return errors.New("--id required")
	}
	pass, err := expandGen(pass)
	if err != nil {
		return err
	}

	s, err := unlockInteractive(log, vaultPath)
	if err != nil {
		return err
	}
	defer s.Lock()

	curr, err := findEntry(s, id, "")
	if err != nil {
		return err
	}
	if user != "" {
		curr.Username = user
	}
	if pass != "" {
		curr.Password = pass
	}
	if notes != "" {
		curr.Notes = notes
	}
	if err := s.UpdateEntry(id, curr); err != nil {
		return err
	}
	fmt.Println("Updated entry id:", id)
	return nil
}

func cmdRm(log zerolog.Logger, vaultPath, id string) error {
	if id == "" {
		return errors.New("--id required")
	}
	s, err := unlockInteractive(log, vaultPath)
	if err != nil {
		return err
	}
	defer s.Lock()

	if err := s.DeleteEntry(id); err != nil {
		return err
	}
	fmt.Println("Deleted entry id:", id)
	return nil
}

func cmdGen(n int, classes passutil.Classes) error {
	pw, err := passutil.Generate(n, classes)
	if err != nil {
		return err
	}
	fmt.Println(pw)
	fmt.Fprintf(os.Stderr, "strength: %d/5\n", passutil.Strength(pw))
	return nil
}

func cmdDups(log zerolog.Logger, vaultPath string) error {
	s, err := unlockInteractive(log, vaultPath)
	if err != nil {
		return err
	}
	defer s.Lock()

	entries, err := s.Entries()
	if err != nil {
		return err
	}
	groups := passutil.Duplicates(entries)
	if len(groups) == 0 {
		fmt.Println("No shared passwords found.")
		return nil
	}
	for _, sites := range groups {
		fmt.Println("Shared password:", strings.Join(sites, ", "))
	}
	return nil
}

func cmdTwoFactor(log zerolog.Logger, vaultPath string, enable, disable bool) error {
	if enable == disable {
		return errors.New("exactly one of --enable or --disable required")
	}

	s, err := unlockInteractive(log, vaultPath)
	if err != nil {
		return err
	}
	defer s.Lock()

	settingsPath := settingsPathFor(vaultPath)
	settings, err := config.Load(settingsPath)
	if err != nil {
		return err
	}

	if disable {
		if err := s.DisableTwoFactor(); err != nil {
			return err
		}
		settings.TwoFactorEnabled = false
		if err := config.Save(settingsPath, settings); err != nil {
			return err
		}
		fmt.Println("Two-factor authentication disabled.")
		return nil
	}

	secret, err := totp.GenerateSecret()
	if err != nil {
		return err
	}
	fmt.Println("Secret:", secret)
	fmt.Println("URI:   ", totp.ProvisionURI("MindVault", vaultPath, secret))
	code, err := promptLine("Enter a code from your authenticator to confirm: ")
	if err != nil {
		return err
	}
	if err := s.EnableTwoFactor(secret, code); err != nil {
		return err
	}
	settings.TwoFactorEnabled = true
	if err := config.Save(settingsPath, settings); err != nil {
		return err
	}
	fmt.Println("Two-factor authentication enabled.")
	return nil
}

func cmdPasswd(log zerolog.Logger, vaultPath string) error {
	s, err := unlockInteractive(log, vaultPath)
	if err != nil {
		return err
	}
	defer s.Lock()

	current, err := promptSecret("Current master password: ")
	if err != nil {
		return err
	}
	defer zero(current)
	next, err := promptNewSecret("New master password: ")
	if err != nil {
		return err
	}
	defer zero(next)

	if err := s.ChangeMasterSecret(current, next); err != nil {
		return err
	}
	fmt.Println("Master password changed.")
	return nil
}

func cmdImport(bundlePath, vaultPath string) error {
	if bundlePath == "" {
		return errors.New("--in required")
	}
	m, err := backup.Inspect(bundlePath)
	if err != nil {
		return err
	}
	fmt.Printf("Bundle from %s, restoring over %s\n", m.CreatedAt.Format(time.RFC3339), vaultPath)
	if err := os.MkdirAll(filepath.Dir(vaultPath), 0o700); err != nil {
		return err
	}
	if err := backup.Import(bundlePath, vaultPath, settingsPathFor(vaultPath)); err != nil {
		return err
	}
	fmt.Println("Restore complete.")
	return nil
}

// ============ Session plumbing ============

func newSession(log zerolog.Logger, vaultPath string) *session.Session {
	settings, err := config.Load(settingsPathFor(vaultPath))
	if err != nil {
		log.Warn().Err(err).Msg("settings unreadable, using defaults")
		settings = config.Default()
	}
	return session.New(session.Config{
		VaultPath: vaultPath,
		Logger:    log,
		AutoLock:  settings.AutoLockTimeout(),
	})
}

// unlockInteractive prompts for the master secret and, when enrolled, a
// TOTP code, returning an unlocked session.
func unlockInteractive(log zerolog.Logger, vaultPath string) (*session.Session, error) {
	s := newSession(log, vaultPath)
	go s.Run(context.Background())

	secret, err := promptSecret("Master password: ")
	if err != nil {
		return nil, err
	}
	defer zero(secret)

	st, err := s.Unlock(secret)
	if err != nil {
		return nil, err
	}
	if st == session.StatusNeedsTwoFactor {
		for attempt := 0; attempt < 3; attempt++ {
			code, err := promptLine("Two-factor code: ")
			if err != nil {
				return nil, err
			}
			st, err = s.VerifyTwoFactor(code)
			if err == nil && st == session.StatusUnlocked {
				return s, nil
			}
			fmt.Fprintln(os.Stderr, "code rejected")
		}
		s.CancelTwoFactor()
		return nil, session.ErrTwoFactorFailed
	}
	return s, nil
}

func findEntry(s *session.Session, id, site string) (vault.Entry, error) {
	entries, err := s.Entries()
	if err != nil {
		return vault.Entry{}, err
	}
	for _, e := range entries {
		if (id != "" && e.ID == id) || (id == "" && e.Site == site) {
			return e, nil
		}
	}
	return vault.Entry{}, vault.ErrEntryNotFound
}

// ============ Utilities ============

func usage() {
	fmt.Print(`mindvault commands:

  init    --vault path
  add     --vault path --site example.com --user alice --pass gen:20 [--notes text]
  list    --vault path [--json]
  find    --vault path --q <text>
  get     --vault path --id <ID> | --site example.com [--copy]
  set     --vault path --id <ID> [--user name] [--pass new|gen:N] [--notes text]
  rm      --vault path --id <ID>
  gen     [--len 20] [--no-upper] [--no-digits] [--no-symbols]
  dups    --vault path
  2fa     --vault path --enable | --disable
  passwd  --vault path
  export  --vault path --out backup.mvb
  import  --vault path --in backup.mvb

Examples:
  mindvault init
  mindvault add --site example.com --user alice --pass gen:16
  mindvault get --site example.com --copy
`)
}

func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if os.Getenv("MINDVAULT_DEBUG") != "" {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()
}

func defaultVaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "mindvault", "vault.enc")
}

func settingsPathFor(vaultPath string) string {
	return filepath.Join(filepath.Dir(vaultPath), "settings.yaml")
}

func promptSecret(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		return secret, err
	}
	line, err := promptLineRaw()
	return []byte(line), err
}

func promptNewSecret(prompt string) ([]byte, error) {
	secret, err := promptSecret(prompt)
	if err != nil {
		return nil, err
	}
	if len(secret) == 0 {
		return nil, errors.New("empty master password")
	}
	confirm, err := promptSecret("Confirm: ")
	if err != nil {
		zero(secret)
		return nil, err
	}
	defer zero(confirm)
	if string(secret) != string(confirm) {
		zero(secret)
		return nil, errors.New("passwords do not match")
	}
	return secret, nil
}

func promptLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	return promptLineRaw()
}

func promptLineRaw() (string, error) {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// expandGen turns a gen:N password argument into a generated password.
func expandGen(pass string) (string, error) {
	if !strings.HasPrefix(pass, "gen:") {
		return pass, nil
	}
	var n int
	_, _ = fmt.Sscanf(pass, "gen:%d", &n)
	if n <= 0 {
		n = 20
	}
	return passutil.Generate(n, passutil.AllClasses())
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func dieIf(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
