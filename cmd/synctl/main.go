package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"synbl/manager"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: synctl [flags] <command> [args]

Commands:
  status               show counters and banned pairs
  ban <ip> <port>      ban a pair now
  release <ip> <port>  lift a ban
  reset                start a new sampling window
  set <key> <value>    change max_syn, period or probation

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	api := flag.String("api", "http://127.0.0.1:9091", "synbl management API base URL")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	c := &client{base: *api, http: &http.Client{Timeout: *timeout}}
	var err error
	switch args := flag.Args(); args[0] {
	case "status":
		err = c.status()
	case "ban", "release":
		if len(args) != 3 {
			usage()
			os.Exit(2)
		}
		err = c.block(args[0] == "ban", args[1], args[2])
	case "reset":
		err = c.reset()
	case "set":
		if len(args) != 3 {
			usage()
			os.Exit(2)
		}
		err = c.set(args[1], args[2])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "synctl: %v\n", err)
		os.Exit(1)
	}
}

type client struct {
	base string
	http *http.Client
}

func (c *client) do(method, path string, body any, want int) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != want {
		return nil, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, bytes.TrimSpace(data))
	}
	return data, nil
}

func (c *client) status() error {
	data, err := c.do(http.MethodGet, "/api/status", nil, http.StatusOK)
	if err != nil {
		return err
	}
	var st manager.StatusResponse
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}

	fmt.Printf("synbl %s  max_syn=%d period=%s probation=%s\n",
		st.Status, st.Settings.MaxSyn, st.Settings.Period, st.Settings.Probation)
	fmt.Printf("\n--- counting (%d) ---\n", len(st.Counting))
	for _, cv := range st.Counting {
		fmt.Printf("  %-40s %d\n", pair(cv.IP, cv.Port), cv.Count)
	}
	fmt.Printf("\n--- banned (%d) ---\n", len(st.Banned))
	for _, b := range st.Banned {
		fmt.Printf("  %-40s since %s, %s left\n", pair(b.IP, b.Port), b.Since.Format(time.RFC3339), b.Remaining)
	}
	if len(st.Mirrored) > 0 {
		fmt.Printf("\n--- mirrored blocks (%d) ---\n", len(st.Mirrored))
		for k, v := range st.Mirrored {
			fmt.Printf("  %-40s %s\n", k, v)
		}
	}
	return nil
}

func (c *client) block(ban bool, ip, port string) error {
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return fmt.Errorf("bad port %q", port)
	}
	if ban {
		_, err = c.do(http.MethodPost, "/api/block", manager.BlockRequest{IP: ip, Port: uint16(p)}, http.StatusCreated)
	} else {
		q := url.Values{"ip": {ip}, "port": {port}}
		_, err = c.do(http.MethodDelete, "/api/block?"+q.Encode(), nil, http.StatusNoContent)
	}
	if err != nil {
		return err
	}
	action := "released"
	if ban {
		action = "banned"
	}
	fmt.Printf("%s %s\n", pair(ip, uint16(p)), action)
	return nil
}

func (c *client) reset() error {
	data, err := c.do(http.MethodPost, "/api/window/reset", nil, http.StatusOK)
	if err != nil {
		return err
	}
	fmt.Println(string(bytes.TrimSpace(data)))
	return nil
}

func (c *client) set(key, value string) error {
	var upd manager.ConfigUpdate
	switch key {
	case "max_syn", "max-syn":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("bad max_syn %q", value)
		}
		upd.MaxSyn = &n
	case "period":
		upd.Period = &value
	case "probation":
		upd.Probation = &value
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	if _, err := c.do(http.MethodPatch, "/api/config", upd, http.StatusAccepted); err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", key, value)
	return nil
}

func pair(ip string, port uint16) string {
	return fmt.Sprintf("%s/%d", ip, port)
}
