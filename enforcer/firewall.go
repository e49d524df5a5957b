package enforcer

import (
	"fmt"
	"net"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"synbl/logger"
)

// Firewall blocks a pair by inserting a DROP rule for TCP traffic from the
// address to the destination port. IPv6 sources go through ip6tables. On
// Windows the equivalent netsh advfirewall rule is used.
type Firewall struct {
	IPTables  string
	IP6Tables string
	Chain     string

	// run executes a command and returns its combined output.
	run func(name string, args ...string) ([]byte, error)
	goos string
}

func NewFirewall(iptables, ip6tables, chain string) *Firewall {
	if iptables == "" {
		iptables = "iptables"
	}
	if ip6tables == "" {
		ip6tables = "ip6tables"
	}
	if chain == "" {
		chain = "INPUT"
	}
	return &Firewall{
		IPTables:  iptables,
		IP6Tables: ip6tables,
		Chain:     chain,
		run:       runCommand,
		goos:      runtime.GOOS,
	}
}

func runCommand(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

func (f *Firewall) Ban(ip net.IP, port uint16) error {
	name, args := f.command("add", ip, port)
	output, err := f.run(name, args...)
	if err != nil {
		logger.Error("Failed to block pair in kernel", "target", pairString(ip, port), "err", err, "output", string(output))
		return fmt.Errorf("block %s: %w", pairString(ip, port), err)
	}
	logger.Debug("Pair blocked at kernel level", "target", pairString(ip, port))
	return nil
}

func (f *Firewall) Unban(ip net.IP, port uint16) error {
	name, args := f.command("delete", ip, port)
	output, err := f.run(name, args...)
	if err != nil {
		if f.goos == "windows" && strings.Contains(string(output), "No rules match") {
			return nil // already gone
		}
		logger.Error("Failed to unblock pair in kernel", "target", pairString(ip, port), "err", err, "output", string(output))
		return fmt.Errorf("unblock %s: %w", pairString(ip, port), err)
	}
	logger.Debug("Pair unblocked at kernel level", "target", pairString(ip, port))
	return nil
}

func (f *Firewall) command(op string, ip net.IP, port uint16) (string, []string) {
	src := ip.String()
	dport := strconv.Itoa(int(port))

	if f.goos == "windows" {
		rule := "name=synbl_" + pairString(ip, port)
		if op == "add" {
			return "netsh", []string{"advfirewall", "firewall", "add", "rule", rule,
				"dir=in", "action=block", "protocol=TCP", "localport=" + dport, "remoteip=" + src}
		}
		return "netsh", []string{"advfirewall", "firewall", "delete", "rule", rule}
	}

	bin := f.IPTables
	if ip.To4() == nil {
		bin = f.IP6Tables
	}
	flag := "-I"
	if op == "delete" {
		flag = "-D"
	}
	// iptables -I INPUT -p tcp -s 1.2.3.4 --dport 80 -j DROP
	return bin, []string{flag, f.Chain, "-p", "tcp", "-s", src, "--dport", dport, "-j", "DROP"}
}

// EnableSynCookies turns on kernel SYN cookies so half-open connections from
// a flood do not exhaust the backlog while bans take effect.
func (f *Firewall) EnableSynCookies() error {
	if f.goos != "linux" {
		logger.Info("SYN cookies not managed on this platform", "os", f.goos)
		return nil
	}
	output, err := f.run("sysctl", "-w", "net.ipv4.tcp_syncookies=1")
	if err != nil {
		return fmt.Errorf("enable tcp_syncookies: %w (%s)", err, strings.TrimSpace(string(output)))
	}
	logger.Info("Kernel SYN cookies enabled")
	return nil
}
