// Package cli implements the registry subcommands: listing, adding,
// deleting and editing devices.
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"devicemonitor/internal/models"
	"devicemonitor/internal/storage"
)

// Command names accepted by Run.
const (
	CmdListDevices  = "list-devices"
	CmdAddDevice    = "add-device"
	CmdDeleteDevice = "delete-device"
	CmdEditDevice   = "edit-device"
)

const usageText = `Wrong command line argument.
Run without any argument to check device availability.
Run with "run-once" to check device availability a single time.
Run with "list-devices" to list all existing devices.
Run with "add-device" to add a new device.
Run with "delete-device <device id>" to delete an existing device.
Run with "edit-device <device id>" to edit an existing device.`

// Registry is the subset of the registry store used by the commands.
type Registry interface {
	Get(id int) (models.Device, bool, error)
	List() ([]models.DeviceEntry, error)
	Insert(id int, dev models.Device) error
	Update(id int, dev models.Device) error
	Delete(id int) error
}

var _ Registry = (*storage.RegistryStore)(nil)

type styles struct {
	header, success, warning lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		header:  r.NewStyle().Bold(true).Padding(0, 1),
		success: r.NewStyle().Foreground(lipgloss.Color("#50FA7B")),
		warning: r.NewStyle().Foreground(lipgloss.Color("#FFB86C")),
	}
}

// Commands runs registry subcommands against a store, reading answers to
// prompts from in and writing to out.
type Commands struct {
	registry Registry
	in       *bufio.Reader
	out      io.Writer
	styles   styles
}

// New creates the command set.
func New(registry Registry, in io.Reader, out io.Writer) *Commands {
	return &Commands{
		registry: registry,
		in:       bufio.NewReader(in),
		out:      out,
		styles:   newStyles(lipgloss.NewRenderer(out)),
	}
}

// Run dispatches args[0]. Mistakes the operator can fix (bad id, unknown
// device, duplicate id, unknown command) are reported on out and yield a nil
// error; store failures are returned.
func (c *Commands) Run(args []string) error {
	if len(args) == 0 {
		c.Usage()
		return nil
	}

	var err error
	switch args[0] {
	case CmdListDevices:
		err = c.ListDevices()
	case CmdAddDevice:
		err = c.AddDevice()
	case CmdDeleteDevice:
		err = c.withID(args, "delete-device <device id>", "delete", c.DeleteDevice)
	case CmdEditDevice:
		err = c.withID(args, "edit-device <device id>", "edit", c.EditDevice)
	default:
		c.Usage()
		return nil
	}
	return c.report(err)
}

// Usage prints the command summary.
func (c *Commands) Usage() {
	fmt.Fprintln(c.out, usageText)
}

// ListDevices prints the registry ordered by id. An empty registry prints nothing.
func (c *Commands) ListDevices() error {
	entries, err := c.registry.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{strconv.Itoa(e.ID), e.Name, e.IP})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return c.styles.header
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("ID", "NAME", "IP").
		Rows(rows...)

	fmt.Fprintln(c.out, t.Render())
	return nil
}

// AddDevice prompts for a new device and inserts it.
func (c *Commands) AddDevice() error {
	rawID, err := c.prompt("Device id")
	if err != nil {
		return err
	}
	id, err := ParseID(rawID)
	if err != nil {
		return err
	}
	if _, exists, err := c.registry.Get(id); err != nil {
		return err
	} else if exists {
		return &storage.DeviceError{ID: id, Err: storage.ErrDuplicateID}
	}

	name, err := c.prompt("Device name")
	if err != nil {
		return err
	}
	ip, err := c.prompt("Device IP")
	if err != nil {
		return err
	}

	if err := c.registry.Insert(id, models.Device{Name: name, IP: ip}); err != nil {
		return err
	}
	c.success("Device %d added.", id)
	return nil
}

// DeleteDevice removes the device with the given id.
func (c *Commands) DeleteDevice(id int) error {
	if err := c.registry.Delete(id); err != nil {
		return err
	}
	c.success("Device %d deleted.", id)
	return nil
}

// EditDevice prompts for a new name and address. Blank answers keep the
// current value. The registry is not written when the id is unknown.
func (c *Commands) EditDevice(id int) error {
	current, ok, err := c.registry.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		return &storage.DeviceError{ID: id, Err: storage.ErrNotFound}
	}

	name, err := c.promptDefault("Device name", current.Name)
	if err != nil {
		return err
	}
	ip, err := c.promptDefault("Device IP", current.IP)
	if err != nil {
		return err
	}

	if err := c.registry.Update(id, models.Device{Name: name, IP: ip}); err != nil {
		return err
	}
	c.success("Device %d updated.", id)
	return nil
}

// ParseID converts a command line or prompt answer into a device id.
func ParseID(raw string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, raw)
	}
	return id, nil
}

func (c *Commands) withID(args []string, usage, verb string, fn func(int) error) error {
	if len(args) < 2 {
		fmt.Fprintf(c.out, "Wrong command line argument.\nRun with %q to %s an existing device.\n", usage, verb)
		return ErrMissingID
	}
	id, err := ParseID(args[1])
	if err != nil {
		return err
	}
	return fn(id)
}

func (c *Commands) report(err error) error {
	var devErr *storage.DeviceError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrMissingID):
		return nil
	case errors.Is(err, ErrInvalidID):
		c.warn("Device id must be integer.")
	case errors.Is(err, ErrNoInput):
		c.warn("No input provided, nothing changed.")
	case errors.As(err, &devErr) && errors.Is(err, storage.ErrDuplicateID):
		c.warn("Device with id %d already exists.", devErr.ID)
	case errors.As(err, &devErr) && errors.Is(err, storage.ErrNotFound):
		c.warn("Device with id %d does not exist.", devErr.ID)
	default:
		return err
	}
	return nil
}

func (c *Commands) prompt(label string) (string, error) {
	fmt.Fprintf(c.out, "%s: ", label)
	line, err := c.in.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
		}
		if line == "" {
			return "", ErrNoInput
		}
	}
	return strings.TrimSpace(line), nil
}

func (c *Commands) promptDefault(label, current string) (string, error) {
	answer, err := c.prompt(fmt.Sprintf("%s [%s]", label, current))
	if err != nil {
		return "", err
	}
	if answer == "" {
		return current, nil
	}
	return answer, nil
}

func (c *Commands) success(format string, args ...any) {
	fmt.Fprintln(c.out, c.styles.success.Render(fmt.Sprintf(format, args...)))
}

func (c *Commands) warn(format string, args ...any) {
	fmt.Fprintln(c.out, c.styles.warning.Render(fmt.Sprintf(format, args...)))
}
