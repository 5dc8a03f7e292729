package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bowerhall/roomchat/internal/chat"
	"github.com/bowerhall/roomchat/internal/config"
	"github.com/bowerhall/roomchat/internal/conversation"
	"github.com/bowerhall/roomchat/internal/extract"
	"github.com/bowerhall/roomchat/internal/session"
	"github.com/bowerhall/roomchat/internal/shopping"
	"github.com/bowerhall/roomchat/internal/speech"
	"github.com/bowerhall/roomchat/internal/storage"
)

var errNoPending = errors.New("no approval is waiting")

const helpText = `Type a message to chat. Commands:
  /image PATH [TEXT]   send a room photo with optional text
  /say FILE            transcribe a recording and send it
  /approve [MSG]       approve every proposed item
  /select ID,ID [MSG]  approve only the listed items
  /reject [MSG]        reject the proposal
  /add PRODUCT         add a listing to the shopping list
  /remove PRODUCT      remove a listing from the shopping list
  /list                show the shopping list
  /voice               toggle spoken replies
  /stop                stop speaking
  /set KEY VALUE       change a preference (/set KEY to reset)
  /config              show preferences
  /threads             list recorded conversations
  /export              save the transcript
  /exports             list archived transcripts of this session
  /quit                exit`

// transcriptArchiver stores exported transcripts remotely.
type transcriptArchiver interface {
	ArchiveTranscript(ctx context.Context, sessionKey string, at time.Time, data []byte) (string, error)
	Download(ctx context.Context, name string) ([]byte, error)
	Transcripts(ctx context.Context, sessionKey string) ([]storage.FileInfo, error)
}

type threadLister interface {
	Threads(ctx context.Context) ([]conversation.Thread, error)
}

type repl struct {
	session     *session.Session
	list        *shopping.List
	runtime     *config.RuntimeConfig
	transcriber speech.Transcriber
	archiver    transcriptArchiver // nil writes exports under dataDir
	threads     threadLister
	dataDir     string

	out    io.Writer
	errOut io.Writer
	shown  int // messages already rendered
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(r.out, "Type /help for commands, /quit to stop.")
	r.shown = len(r.session.Messages())

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintln(r.out)
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if quit := r.handle(ctx, line); quit {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// handle runs one input line and reports whether the user asked to quit.
func (r *repl) handle(ctx context.Context, line string) bool {
	if !strings.HasPrefix(line, "/") {
		r.report(r.send(ctx, line, ""))
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch cmd {
	case "/quit", "/exit":
		fmt.Fprintln(r.out, "bye")
		return true
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/image":
		err = r.sendImage(ctx, arg)
	case "/say":
		err = r.say(ctx, arg)
	case "/approve":
		err = r.approve(ctx, arg)
	case "/select":
		err = r.selectItems(ctx, arg)
	case "/reject":
		err = r.reject(ctx, arg)
	case "/add":
		err = r.add(arg)
	case "/remove":
		if !r.list.Remove(arg) {
			err = fmt.Errorf("%s is not on the list", arg)
		} else {
			fmt.Fprintf(r.out, "removed %s\n", arg)
		}
	case "/list":
		r.printList()
	case "/voice":
		err = r.toggleVoice()
	case "/stop":
		r.session.StopSpeaking()
	case "/set":
		err = r.set(arg)
	case "/config":
		r.printConfig()
	case "/threads":
		err = r.printThreads(ctx)
	case "/export":
		err = r.export(ctx)
	case "/exports":
		err = r.printExports(ctx)
	default:
		err = fmt.Errorf("unknown command %s, try /help", cmd)
	}

	r.report(err)
	return false
}

func (r *repl) report(err error) {
	if err != nil {
		fmt.Fprintf(r.errOut, "error: %v\n", err)
	}
}

// send runs a turn and renders whatever it added, including the error
// message a failed turn leaves behind.
func (r *repl) send(ctx context.Context, text, image string) error {
	err := r.session.Send(ctx, text, image)
	r.render()
	return err
}

func (r *repl) sendImage(ctx context.Context, arg string) error {
	path, text, _ := strings.Cut(arg, " ")
	if path == "" {
		return errors.New("usage: /image PATH [TEXT]")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	return r.send(ctx, strings.TrimSpace(text), base64.StdEncoding.EncodeToString(data))
}

func (r *repl) say(ctx context.Context, path string) error {
	if path == "" {
		return errors.New("usage: /say FILE")
	}
	if r.transcriber == nil {
		return errors.New("speech is not configured")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	text, err := r.transcriber.Transcribe(ctx, f, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("nothing heard in recording")
	}

	fmt.Fprintf(r.out, "you: %s\n", text)
	return r.send(ctx, text, "")
}

// target picks the message to answer: the one given, or the newest pending
// approval.
func (r *repl) target(id string) (string, error) {
	if id != "" {
		return id, nil
	}
	latest, ok := r.session.Interrupts().Latest()
	if !ok {
		return "", errNoPending
	}
	return latest.MessageID, nil
}

func (r *repl) approve(ctx context.Context, arg string) error {
	id, err := r.target(arg)
	if err != nil {
		return err
	}
	err = r.session.ApproveAll(ctx, id)
	r.render()
	return err
}

func (r *repl) selectItems(ctx context.Context, arg string) error {
	list, msg, _ := strings.Cut(arg, " ")
	var ids []string
	for _, id := range strings.Split(list, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	id, err := r.target(strings.TrimSpace(msg))
	if err != nil {
		return err
	}
	err = r.session.ApproveSelected(ctx, id, ids)
	r.render()
	return err
}

func (r *repl) reject(ctx context.Context, arg string) error {
	id, err := r.target(arg)
	if err != nil {
		return err
	}
	err = r.session.Reject(ctx, id)
	r.render()
	return err
}

func (r *repl) add(id string) error {
	p, err := shopping.Find(r.session.Messages(), id)
	if err != nil {
		return err
	}
	if !r.list.Add(p) {
		fmt.Fprintf(r.out, "%s is already on the list\n", p.Title)
		return nil
	}
	fmt.Fprintf(r.out, "added %s\n", p.Title)
	return nil
}

func (r *repl) printList() {
	items := r.list.Items()
	if len(items) == 0 {
		fmt.Fprintln(r.out, "shopping list is empty")
		return
	}
	var total chat.Price
	for _, p := range items {
		fmt.Fprintf(r.out, "  %s  %s  %.2f %s  %s\n", p.ID, p.Title, float64(p.Price), p.Currency, p.URL)
		total += p.Price
	}
	fmt.Fprintf(r.out, "  %d items, %.2f total\n", len(items), float64(total))
}

func (r *repl) toggleVoice() error {
	enabled := r.session.ToggleVoice()
	if enabled {
		fmt.Fprintln(r.out, "voice on")
	} else {
		fmt.Fprintln(r.out, "voice off")
	}
	if r.runtime == nil {
		return nil
	}
	return r.runtime.Set("voice", strconv.FormatBool(enabled))
}

func (r *repl) set(arg string) error {
	if r.runtime == nil {
		return errors.New("preferences are not available")
	}
	key, value, _ := strings.Cut(arg, " ")
	value = strings.TrimSpace(value)
	if key == "" {
		return errors.New("usage: /set KEY VALUE")
	}

	if err := r.runtime.Set(key, value); err != nil {
		return err
	}

	switch key {
	case "voice":
		r.session.SetVoice(r.runtime.VoiceEnabled())
	default:
		fmt.Fprintln(r.out, "takes effect on next start")
	}
	fmt.Fprintf(r.out, "%s = %s\n", key, r.runtime.Get(key))
	return nil
}

func (r *repl) printConfig() {
	if r.runtime == nil {
		return
	}
	all := r.runtime.All()
	overrides := r.runtime.Overrides()

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		mark := ""
		if _, ok := overrides[k]; ok {
			mark = " (set)"
		}
		fmt.Fprintf(r.out, "  %s = %s%s\n      %s\n", k, all[k], mark, config.AllowedKeys[k])
	}
}

func (r *repl) printThreads(ctx context.Context) error {
	if r.threads == nil {
		return errors.New("transcripts are not recorded")
	}
	threads, err := r.threads.Threads(ctx)
	if err != nil {
		return err
	}
	for _, t := range threads {
		fmt.Fprintf(r.out, "  %s  thread=%s  %d messages  %s\n",
			t.SessionKey, t.ThreadID, t.Messages, t.LastAt.Local().Format(time.DateTime))
	}
	return nil
}

type transcript struct {
	SessionKey string         `json:"session_key"`
	ThreadID   string         `json:"thread_id,omitempty"`
	ExportedAt time.Time      `json:"exported_at"`
	Messages   []chat.Message `json:"messages"`
}

func (r *repl) export(ctx context.Context) error {
	now := time.Now().UTC()
	data, err := json.MarshalIndent(transcript{
		SessionKey: r.session.Key(),
		ThreadID:   r.session.ThreadID(),
		ExportedAt: now,
		Messages:   r.session.Messages(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	if r.archiver != nil {
		key, err := r.archiver.ArchiveTranscript(ctx, r.session.Key(), now, data)
		if err != nil {
			return err
		}
		stored, err := r.archiver.Download(ctx, key)
		if err != nil {
			return fmt.Errorf("verify export: %w", err)
		}
		if !bytes.Equal(stored, data) {
			return fmt.Errorf("archived transcript %s does not match what was sent", key)
		}
		fmt.Fprintf(r.out, "exported to %s\n", key)
		return nil
	}

	path := filepath.Join(r.dataDir, fmt.Sprintf("transcript-%s-%s.json", r.session.Key(), now.Format("20060102T150405Z")))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	fmt.Fprintf(r.out, "exported to %s\n", path)
	return nil
}

func (r *repl) printExports(ctx context.Context) error {
	if r.archiver == nil {
		return errors.New("media archive is not configured")
	}
	files, err := r.archiver.Transcripts(ctx, r.session.Key())
	if err != nil {
		return err
	}

	n := 0
	for _, f := range files {
		if f.IsDir {
			continue
		}
		fmt.Fprintf(r.out, "  %s  %d bytes  %s\n", f.Name, f.Size, f.ModTime)
		n++
	}
	if n == 0 {
		fmt.Fprintln(r.out, "no archived transcripts for this session")
	}
	return nil
}

// render prints assistant messages added since the last call.
func (r *repl) render() {
	msgs := r.session.Messages()
	if r.shown > len(msgs) {
		r.shown = 0
	}
	for _, m := range msgs[r.shown:] {
		if m.Role == chat.RoleAssistant {
			renderMessage(r.out, m)
		}
	}
	r.shown = len(msgs)
}

func renderMessage(out io.Writer, m chat.Message) {
	if text := extract.Display(m.Content, m.Interrupt != nil); text != "" {
		fmt.Fprintf(out, "agent: %s\n", text)
	}

	for _, s := range extract.Summaries(m.ToolCalls) {
		fmt.Fprintf(out, "  [tool] %s %s", s.Tool, s.Args)
		if s.ProductCount > 0 {
			fmt.Fprintf(out, " (%d listings)", s.ProductCount)
		}
		fmt.Fprintln(out)
	}

	if len(m.ColorPalette) > 0 {
		fmt.Fprintf(out, "  palette: %s\n", strings.Join(m.ColorPalette, " "))
	}

	for _, p := range m.Products {
		fmt.Fprintf(out, "  [%s] %s  %.2f %s  %s", p.ID, p.Title, float64(p.Price), p.Currency, p.Source)
		if p.Location != "" {
			fmt.Fprintf(out, "  %s", p.Location)
		}
		fmt.Fprintln(out)
	}

	if m.Interrupt != nil {
		renderInterrupt(out, m)
	}
}

func renderInterrupt(out io.Writer, m chat.Message) {
	in := m.Interrupt
	fmt.Fprintf(out, "  %s (%s, %d items)\n", in.Message, in.Type, in.ItemCount)
	for _, item := range in.Items {
		fmt.Fprintf(out, "    - %s  %s  %.2f  %s\n", item.ID, item.Title, float64(item.Price), item.Source)
		if item.DraftMessage != "" {
			fmt.Fprintf(out, "      draft: %q\n", item.DraftMessage)
		}
	}
	if !m.InterruptResolved {
		fmt.Fprintln(out, "  answer with /approve, /select ID,ID or /reject")
	}
}
