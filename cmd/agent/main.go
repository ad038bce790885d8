package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"ghosthq/internal/backend"
	"ghosthq/internal/command"
	"ghosthq/internal/config"
	"ghosthq/internal/model"
)

func main() {
	// .envファイルを読み込み
	if err := config.LoadDotEnv(); err != nil {
		log.Printf("⚠️  .env file not found, using default values: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cobra.CheckErr(newCmd(config.New()).ExecuteContext(ctx))
}

var flagKeys = map[string]string{
	"api-url":    "hq_api_url",
	"name":       "agent_name",
	"id":         "agent_id",
	"photo-url":  "agent_photo_url",
	"project":    "firestore_project_id",
	"credential": "firestore_credentials_file",
}

func newCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ghosthq-agent",
		Short: "Terminal agent for the ghost hunt command center. Type chat lines, !commands, /map NAME, /name NAME or /clear-evidence.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(v)
			return run(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.String("api-url", "", "command center base URL (env: HQ_API_URL)")
	fs.StringP("name", "n", "", "display name (env: AGENT_NAME)")
	fs.String("id", "", "fixed agent id instead of a generated one (env: AGENT_ID)")
	fs.String("photo-url", "", "avatar URL (env: AGENT_PHOTO_URL)")
	fs.String("project", "", "Firestore project; empty runs against the command center (env: FIRESTORE_PROJECT_ID)")
	fs.String("credential", "", "Firestore service account file (env: FIRESTORE_CREDENTIALS_FILE)")

	for name, key := range flagKeys {
		_ = v.BindPFlag(key, fs.Lookup(name))
	}

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

func run(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer) error {
	activity := command.NewActivityLog(command.DefaultLogSize)
	term := newTerminal(out)
	activity.OnAppend(term.printEntry)

	activity.Add(command.KindSystem, "Command center initializing...")

	facade := backend.Select(ctx, cfg, log.New(os.Stderr, "", log.LstdFlags))
	defer facade.Close()

	id, _ := facade.Identity()
	if id.Online {
		activity.Add(command.KindSystem, fmt.Sprintf("Firebase connected. Agent %s authenticated.", shortID(id.UserID)))
	} else {
		if cfg.FirestoreEnabled() {
			activity.Add(command.KindEvent, "Firebase connection failed. Using offline mode.")
		}
		activity.Add(command.KindSystem, fmt.Sprintf("Using offline mode. Agent %s initialized.", shortID(id.UserID)))
	}

	if err := facade.SaveProfile(ctx); err != nil {
		log.Printf("⚠️  Failed to save profile: %v", err)
	}
	if err := facade.UpdateStatus(ctx, model.SquadStatusUpdate{IsDead: model.BoolPtr(false)}); err != nil {
		log.Printf("⚠️  Failed to register squad status: %v", err)
	}

	unsubscribe := []func(){
		facade.OnChat(term.printChat),
		facade.OnEvent(func(ev model.GhostEvent) { activity.ObserveEvent(ev) }),
		facade.OnStatus(term.printSquad),
		facade.OnEvidence(term.printEvidence),
	}
	defer func() {
		for _, fn := range unsubscribe {
			fn()
		}
	}()

	sess := &session{
		facade:   facade,
		activity: activity,
		interp:   command.NewInterpreter(facade, activity),
	}
	return readLoop(ctx, in, sess)
}

// session is one agent at the terminal.
type session struct {
	facade   *backend.Facade
	activity *command.ActivityLog
	interp   *command.Interpreter
}

// readLoop feeds stdin lines to the session until EOF, /quit or ctx ends.
func readLoop(ctx context.Context, in io.Reader, sess *session) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := sess.handleLine(ctx, line); quit {
				return nil
			}
		}
	}
}

// handleLine runs one line. It reports whether the agent should exit.
//
//	/map NAME         set the investigation map
//	/name NAME        change display name
//	/clear-evidence   empty the squad's evidence board
//	/quit             leave
func (s *session) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	var err error
	switch {
	case line == "/quit" || line == "/exit":
		return true
	case strings.HasPrefix(line, "/map "):
		err = s.interp.ChangeMap(ctx, strings.TrimPrefix(line, "/map "))
	case strings.HasPrefix(line, "/name "):
		err = s.rename(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/name ")))
	case line == "/clear-evidence":
		if err = s.facade.ClearEvidence(ctx); err == nil {
			s.activity.Add(command.KindSystem, "Evidence board cleared.")
		}
	default:
		err = s.interp.Submit(ctx, line)
	}
	if err != nil {
		log.Printf("❌ %v", err)
	}
	return false
}

func (s *session) rename(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}
	s.activity.Add(command.KindSystem, "Profile updated: "+name)
	if err := s.facade.Rename(ctx, name, ""); err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// terminal prints feeds without repeating what it already showed.
type terminal struct {
	mu       sync.Mutex
	out      io.Writer
	chat     map[string]bool
	evidence map[string]bool
	squad    map[string]string
}

func newTerminal(out io.Writer) *terminal {
	return &terminal{
		out:      out,
		chat:     make(map[string]bool),
		evidence: make(map[string]bool),
		squad:    make(map[string]string),
	}
}

func (t *terminal) printEntry(e command.Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "%s [%s] %s\n", e.Timestamp.Format("15:04:05"), strings.ToUpper(string(e.Kind)), e.Message)
}

func (t *terminal) printChat(msgs []model.ChatMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range msgs {
		if t.chat[m.ID] {
			continue
		}
		t.chat[m.ID] = true
		name := m.DisplayName
		if name == "" {
			name = shortID(m.UserID)
		}
		fmt.Fprintf(t.out, "%s <%s> %s\n", m.Timestamp.Format("15:04:05"), name, m.Text)
	}
}

func (t *terminal) printEvidence(items []model.Evidence) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(items) == 0 && len(t.evidence) > 0 {
		t.evidence = make(map[string]bool)
		fmt.Fprintln(t.out, "-- evidence cleared --")
		return
	}
	for _, ev := range items {
		if t.evidence[ev.ID] {
			continue
		}
		t.evidence[ev.ID] = true
		fmt.Fprintf(t.out, "-- evidence: %s (%s)\n", ev.Evidence, ev.DisplayName)
	}
}

func (t *terminal) printSquad(rows []model.SquadStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range rows {
		line := describeStatus(s)
		if t.squad[s.UserID] == line {
			continue
		}
		t.squad[s.UserID] = line
		fmt.Fprintf(t.out, "-- squad: %s\n", line)
	}
}

func describeStatus(s model.SquadStatus) string {
	name := shortID(s.UserID)
	if s.DisplayName != nil && *s.DisplayName != "" {
		name = *s.DisplayName
	}
	state := "alive"
	if s.IsDead {
		state = "dead"
	}
	var where []string
	if s.Map != nil && *s.Map != "" {
		where = append(where, *s.Map)
	}
	if s.Location != nil && *s.Location != "" {
		where = append(where, *s.Location)
	}
	if len(where) == 0 {
		return fmt.Sprintf("%s is %s", name, state)
	}
	return fmt.Sprintf("%s is %s at %s", name, state, strings.Join(where, " / "))
}
