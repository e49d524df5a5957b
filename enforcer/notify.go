package enforcer

import (
	"fmt"
	"net"
	"strconv"

	"synbl/notifier"
)

// Notify sends a webhook alert for each ban and release. It never fails the
// request; delivery is best effort.
type Notify struct {
	Webhook *notifier.Webhook
	Geo     *GeoLocator
}

func (n *Notify) Ban(ip net.IP, port uint16) error {
	n.Webhook.SendAlert(fmt.Sprintf("SYN flood: banned %s", pairString(ip, port)), "warning", n.fields(ip, port))
	return nil
}

func (n *Notify) Unban(ip net.IP, port uint16) error {
	n.Webhook.SendAlert(fmt.Sprintf("probation over: released %s", pairString(ip, port)), "info", n.fields(ip, port))
	return nil
}

func (n *Notify) fields(ip net.IP, port uint16) map[string]string {
	f := map[string]string{
		"ip":   ip.String(),
		"port": strconv.Itoa(int(port)),
	}
	if c := n.Geo.Country(ip); c != "" {
		f["country"] = c
	}
	return f
}
