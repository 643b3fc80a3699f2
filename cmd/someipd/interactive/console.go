package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/flankersky/vector-ap-bsw-sub007/pkg/application"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/config"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/reactor"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/router"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/sd"
	"github.com/flankersky/vector-ap-bsw-sub007/pkg/someip"
)

const defaultTTL = 3 * time.Second

// Daemon is the set of components the console operates on.
type Daemon struct {
	Loop    *reactor.Loop
	Router  *router.Router
	SD      *sd.Client
	Apps    *application.Manager
	Trigger *sd.MemoryTrigger
	Catalog *config.Catalog
}

// Console handles interactive mode for someipd.
//
// Commands run on the reactor loop. Connections opened from the console
// are numbered from 1 in the order they were opened.
type Console struct {
	term  *Terminal
	d     Daemon
	conns map[int]*application.Connection
	next  int
}

// New creates a console.
func New(term *Terminal, d Daemon) *Console {
	return &Console{
		term:  term,
		d:     d,
		conns: make(map[int]*application.Connection),
		next:  1,
	}
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.term.rl.Close()

	out := c.term.Stdout()
	c.printHelp(out)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.term.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(out, "Exiting...")
			cancel()
			return
		}

		if quit := c.exec(ctx, out, line); quit {
			fmt.Fprintln(out, "Exiting...")
			cancel()
			return
		}
	}
}

// exec runs one command line and reports whether the console should quit.
func (c *Console) exec(ctx context.Context, w io.Writer, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		c.printHelp(w)
	case "status", "s":
		err = c.cmdStatus(ctx, w)
	case "services":
		err = c.cmdServices(ctx, w)
	case "subs":
		err = c.cmdSubs(ctx, w)
	case "routes", "r":
		err = c.cmdRoutes(ctx, w)
	case "catalog":
		c.cmdCatalog(w)
	case "conns":
		c.cmdConns(w)
	case "connect":
		err = c.cmdConnect(ctx, w)
	case "disconnect":
		err = c.cmdDisconnect(ctx, w, args)
	case "request", "release", "offer", "stopoffer":
		err = c.cmdInstance(ctx, w, cmd, args)
	case "subscribe", "unsubscribe":
		err = c.cmdEventgroup(ctx, w, cmd, args)
	case "recv":
		err = c.cmdRecv(w, args)
	case "inject":
		err = c.cmdInject(ctx, w, args)
	case "network":
		err = c.cmdNetwork(ctx, w, args)
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(w, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
	}
	return false
}

func (c *Console) printHelp(w io.Writer) {
	fmt.Fprint(w, `
Commands:
  status                              Component summary
  services                            Required service instances and their search state
  subs                                Eventgroup subscriptions
  routes                              Routing tables and field cache
  catalog                             Configured services and eventgroups
  conns                               Console connections
  connect                             Open a local application connection
  disconnect <conn>                   Close a connection
  request|release <conn> <svc> <inst>
  offer|stopoffer <conn> <svc> <inst>
  subscribe|unsubscribe <conn> <svc> <inst> <eg>
  recv <conn>                         Print queued packets and notices
  inject offer <svc> <inst> [ttl]     Feed an SD entry as if received
  inject stopoffer <svc> <inst>
  inject ack <svc> <inst> <eg> [ttl]
  inject nack <svc> <inst> <eg>
  network up|down
  quit

IDs accept decimal or 0x hex.
`)
}

func (c *Console) do(ctx context.Context, fn func()) error {
	return c.d.Loop.Do(ctx, fn)
}

func (c *Console) cmdStatus(ctx context.Context, w io.Writer) error {
	var services, groups, conns, sinks int
	var rt string
	err := c.do(ctx, func() {
		services = len(c.d.SD.Services())
		groups = len(c.d.SD.Eventgroups())
		conns = len(c.d.Apps.Connections())
		sinks = c.d.Router.Sinks().Len()
		rt = c.d.Router.String()
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "services=%d eventgroups=%d connections=%d sinks=%d\n", services, groups, conns, sinks)
	fmt.Fprintf(w, "%s\n", rt)
	fmt.Fprintf(w, "pending sd entries=%d loop tasks=%d\n", c.d.Trigger.Pending(), c.d.Loop.Executed())
	return nil
}

func (c *Console) cmdServices(ctx context.Context, w io.Writer) error {
	var b strings.Builder
	err := c.do(ctx, func() {
		for _, key := range c.d.SD.Services() {
			state, _ := c.d.SD.FindServiceState(key)
			fmt.Fprintf(&b, "  %s  %-18s available=%t\n", key, state, c.d.SD.IsAvailable(key))
		}
	})
	if err != nil {
		return err
	}
	if b.Len() == 0 {
		fmt.Fprintln(w, "No services tracked")
		return nil
	}
	fmt.Fprint(w, b.String())
	return nil
}

func (c *Console) cmdSubs(ctx context.Context, w io.Writer) error {
	var b strings.Builder
	err := c.do(ctx, func() {
		for _, key := range c.d.SD.Eventgroups() {
			fmt.Fprintf(&b, "  %s  %-14s subscribers=%d\n",
				key, c.d.SD.SubscriptionState(key), len(c.d.SD.Subscribers(key)))
		}
	})
	if err != nil {
		return err
	}
	if b.Len() == 0 {
		fmt.Fprintln(w, "No subscriptions")
		return nil
	}
	fmt.Fprint(w, b.String())
	return nil
}

func (c *Console) cmdRoutes(ctx context.Context, w io.Writer) error {
	var snap router.Snapshot
	if err := c.do(ctx, func() { snap = c.d.Router.Snapshot() }); err != nil {
		return err
	}

	fmt.Fprintln(w, "Requests:")
	for _, r := range snap.Requests {
		fmt.Fprintf(w, "  %s -> %s\n", r.Key, r.Sink)
	}
	fmt.Fprintf(w, "Pending responses: %d\n", len(snap.Responses))
	fmt.Fprintln(w, "Events:")
	for _, r := range snap.Events {
		fmt.Fprintf(w, "  %s -> %s\n", r.Key, joinSinks(r.Sinks))
	}
	fmt.Fprintln(w, "Eventgroups:")
	for _, r := range snap.Eventgroups {
		fmt.Fprintf(w, "  %s -> %s\n", r.Key, joinSinks(r.Sinks))
	}
	fmt.Fprintln(w, "Fields:")
	for _, f := range snap.Fields {
		stale := ""
		if f.Stale {
			stale = " (stale)"
		}
		fmt.Fprintf(w, "  %s %d bytes%s\n", f.Key, f.Size, stale)
	}
	return nil
}

// cmdCatalog reads immutable configuration and skips the loop.
func (c *Console) cmdCatalog(w io.Writer) {
	services := c.d.Catalog.Services()
	if len(services) == 0 {
		fmt.Fprintln(w, "No services configured")
		return
	}
	for _, svc := range services {
		major, _ := c.d.Catalog.MajorVersion(svc)
		groups := c.d.Catalog.Eventgroups(svc)
		ids := make([]string, len(groups))
		for i, g := range groups {
			ids[i] = fmt.Sprintf("0x%04x", uint16(g))
		}
		fmt.Fprintf(w, "  0x%04x  v%d  eventgroups: %s\n", uint16(svc), major, strings.Join(ids, " "))
	}
}

func joinSinks(ids []router.SinkID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, " ")
}

func (c *Console) cmdConns(w io.Writer) {
	if len(c.conns) == 0 {
		fmt.Fprintln(w, "No connections")
		return
	}
	for _, n := range slices.Sorted(maps.Keys(c.conns)) {
		conn := c.conns[n]
		fmt.Fprintf(w, "  %d  %s  %s  queued=%d dropped=%d\n",
			n, conn.ID(), conn.Label(), len(conn.Packets()), conn.Dropped())
	}
}

func (c *Console) cmdConnect(ctx context.Context, w io.Writer) error {
	var conn *application.Connection
	if err := c.do(ctx, func() { conn = c.d.Apps.Connect() }); err != nil {
		return err
	}
	n := c.next
	c.next++
	c.conns[n] = conn
	fmt.Fprintf(w, "Connection %d opened (%s)\n", n, conn.Label())
	return nil
}

func (c *Console) cmdDisconnect(ctx context.Context, w io.Writer, args []string) error {
	n, conn, err := c.connArg(args)
	if err != nil {
		return err
	}
	var derr error
	if err := c.do(ctx, func() { derr = c.d.Apps.Disconnect(conn.ID()) }); err != nil {
		return err
	}
	delete(c.conns, n)
	if derr != nil {
		return derr
	}
	fmt.Fprintf(w, "Connection %d closed\n", n)
	return nil
}

func (c *Console) cmdInstance(ctx context.Context, w io.Writer, cmd string, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: %s <conn> <svc> <inst>", cmd)
	}
	_, conn, err := c.connArg(args[:1])
	if err != nil {
		return err
	}
	key, err := parseInstance(args[1], args[2])
	if err != nil {
		return err
	}

	ops := map[string]func(router.SinkID, someip.ServiceInstanceKey) error{
		"request":   c.d.Apps.RequestService,
		"release":   c.d.Apps.ReleaseService,
		"offer":     c.d.Apps.OfferService,
		"stopoffer": c.d.Apps.StopOfferService,
	}
	var opErr error
	if err := c.do(ctx, func() { opErr = ops[cmd](conn.ID(), key) }); err != nil {
		return err
	}
	if opErr != nil {
		return opErr
	}
	fmt.Fprintf(w, "%s %s: OK\n", cmd, key)
	return nil
}

func (c *Console) cmdEventgroup(ctx context.Context, w io.Writer, cmd string, args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("usage: %s <conn> <svc> <inst> <eg>", cmd)
	}
	_, conn, err := c.connArg(args[:1])
	if err != nil {
		return err
	}
	key, err := parseEventgroup(args[1:])
	if err != nil {
		return err
	}

	op := c.d.Apps.Subscribe
	if cmd == "unsubscribe" {
		op = c.d.Apps.Unsubscribe
	}
	var opErr error
	if err := c.do(ctx, func() { opErr = op(conn.ID(), key) }); err != nil {
		return err
	}
	if opErr != nil {
		return opErr
	}
	fmt.Fprintf(w, "%s %s: OK\n", cmd, key)
	return nil
}

// cmdRecv does not need the loop: the queues are channels.
func (c *Console) cmdRecv(w io.Writer, args []string) error {
	_, conn, err := c.connArg(args)
	if err != nil {
		return err
	}
	count := 0
	for {
		select {
		case msg, ok := <-conn.Packets():
			if !ok {
				return nil
			}
			h := msg.Packet.Header
			fmt.Fprintf(w, "  packet %s service=0x%04x instance=0x%04x method=0x%04x payload=%d bytes\n",
				h.MessageType, uint16(h.Service), uint16(msg.Instance), uint16(h.Method), len(msg.Packet.Payload))
			count++
			continue
		case n, ok := <-conn.Notices():
			if !ok {
				return nil
			}
			switch n.Kind {
			case application.NoticeAvailability:
				fmt.Fprintf(w, "  notice %s available=%t\n", n.Service, n.Available)
			case application.NoticeSubscription:
				fmt.Fprintf(w, "  notice %s %s\n", n.Eventgroup, n.Status)
			}
			count++
			continue
		default:
		}
		break
	}
	if count == 0 {
		fmt.Fprintln(w, "Nothing queued")
	}
	return nil
}

func (c *Console) cmdInject(ctx context.Context, w io.Writer, args []string) error {
	if len(args) < 3 {
		return errors.New("usage: inject offer|stopoffer|ack|nack <svc> <inst> [eg] [ttl]")
	}
	key, err := parseInstance(args[1], args[2])
	if err != nil {
		return err
	}
	e := sd.Entry{Service: key.Service, Instance: key.Instance, Multicast: true}
	rest := args[3:]

	switch strings.ToLower(args[0]) {
	case "offer":
		e.Type = sd.EntryOfferService
		if e.TTL, err = ttlArg(rest); err != nil {
			return err
		}
	case "stopoffer":
		e.Type = sd.EntryStopOfferService
	case "ack", "nack":
		e.Type = sd.EntrySubscribeEventgroupAck
		if strings.EqualFold(args[0], "nack") {
			e.Type = sd.EntrySubscribeEventgroupNack
		}
		if len(rest) == 0 {
			return fmt.Errorf("usage: inject %s <svc> <inst> <eg>", args[0])
		}
		eg, err := parseID(rest[0])
		if err != nil {
			return err
		}
		e.Eventgroup = someip.EventgroupID(eg)
		if e.Type == sd.EntrySubscribeEventgroupAck {
			if e.TTL, err = ttlArg(rest[1:]); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown entry type: %s", args[0])
	}

	if err := c.do(ctx, func() { c.d.SD.HandleEntry(e) }); err != nil {
		return err
	}
	fmt.Fprintf(w, "Injected %s\n", e)
	return nil
}

func (c *Console) cmdNetwork(ctx context.Context, w io.Writer, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: network up|down")
	}
	var fn func()
	switch strings.ToLower(args[0]) {
	case "up":
		fn = c.d.SD.OnNetworkUp
	case "down":
		fn = c.d.SD.OnNetworkDown
	default:
		return fmt.Errorf("unknown network state: %s", args[0])
	}
	if err := c.do(ctx, fn); err != nil {
		return err
	}
	fmt.Fprintf(w, "Network %s\n", strings.ToLower(args[0]))
	return nil
}

func (c *Console) connArg(args []string) (int, *application.Connection, error) {
	if len(args) != 1 {
		return 0, nil, errors.New("connection number required")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, nil, fmt.Errorf("invalid connection number: %s", args[0])
	}
	conn, ok := c.conns[n]
	if !ok {
		return 0, nil, fmt.Errorf("no connection %d", n)
	}
	return n, conn, nil
}

func parseID(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return uint16(v), nil
}

func parseInstance(svc, inst string) (someip.ServiceInstanceKey, error) {
	s, err := parseID(svc)
	if err != nil {
		return someip.ServiceInstanceKey{}, err
	}
	i, err := parseID(inst)
	if err != nil {
		return someip.ServiceInstanceKey{}, err
	}
	return someip.ServiceInstanceKey{Service: someip.ServiceID(s), Instance: someip.InstanceID(i)}, nil
}

func parseEventgroup(args []string) (someip.EventgroupKey, error) {
	key, err := parseInstance(args[0], args[1])
	if err != nil {
		return someip.EventgroupKey{}, err
	}
	eg, err := parseID(args[2])
	if err != nil {
		return someip.EventgroupKey{}, err
	}
	return someip.NewEventgroupKey(key.Service, key.Instance, someip.EventgroupID(eg)), nil
}

func ttlArg(args []string) (time.Duration, error) {
	if len(args) == 0 {
		return defaultTTL, nil
	}
	d, err := time.ParseDuration(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid ttl %q: %w", args[0], err)
	}
	return d, nil
}
