package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/autopeer-io/agvfleet/cmd/agvfleetd/app/options"
)

func newVehiclesCommand(opts *options.Options) *cobra.Command {
	var endpoint string
	cmd := &cobra.Command{
		Use:   "vehicles",
		Short: "Print the configured vehicle roster, or the live fleet state with --endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if endpoint != "" {
				return printLive(cmd.OutOrStdout(), endpoint)
			}
			return printRoster(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Base URL of a running agvfleetd, e.g. http://127.0.0.1:8080.")
	return cmd
}

func printRoster(w io.Writer, opts *options.Options) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}

	table := uitable.New()
	table.MaxColWidth = 40
	table.AddRow("ID", "NAME", "CAPABILITY", "PROTOCOL", "ROLE", "PEER", "MAX SPEED")
	for _, m := range cfg.Members {
		peer := m.Link.PeerAddr
		if m.Link.PeerPort != 0 {
			peer = net.JoinHostPort(peer, strconv.Itoa(int(m.Link.PeerPort)))
		}
		table.AddRow(m.Identity.ID, m.Identity.Name, m.Identity.Capability, m.Identity.Protocol,
			m.Link.Role, peer, m.Identity.MaxSpeed)
	}
	_, err = fmt.Fprintln(w, table)
	return err
}

// liveVehicle is the subset of a vehicle snapshot the live table shows.
type liveVehicle struct {
	ID        uint16 `json:"id"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Mode      string `json:"mode"`
	Status    string `json:"status"`
	Battery   uint8  `json:"battery"`
	Current   uint16 `json:"current"`
	End       uint16 `json:"end"`
	Error     string `json:"error"`
	SelfError string `json:"selfError"`
}

func printLive(w io.Writer, endpoint string) error {
	client := &nethttp.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimSuffix(endpoint, "/") + "/api/v1/vehicles")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != nethttp.StatusOK {
		return fmt.Errorf("%s answered %s", endpoint, resp.Status)
	}

	var vehicles []liveVehicle
	if err := json.NewDecoder(resp.Body).Decode(&vehicles); err != nil {
		return fmt.Errorf("failed to decode vehicles: %w", err)
	}

	table := uitable.New()
	table.AddRow("ID", "NAME", "LINK", "MODE", "STATUS", "BATTERY", "AT", "TO", "FAULT")
	for _, v := range vehicles {
		link := "down"
		if v.Connected {
			link = "up"
		}
		fault := v.Error
		if v.SelfError != "" && v.SelfError != "none" {
			fault = v.SelfError
		}
		table.AddRow(v.ID, v.Name, link, v.Mode, v.Status, fmt.Sprintf("%d%%", v.Battery), v.Current, v.End, fault)
	}
	_, err = fmt.Fprintln(w, table)
	return err
}
