package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/naist-inet-lab/go-ipv6multicast/multicast"
)

// formatLine builds the datagram text of an input line. Blank lines are not sent.
func formatLine(name, text string) (string, bool) {
	text = strings.TrimRight(text, "\r\n")
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	return name + " > " + text, true
}

// chat relays input lines to the joined group and prints every line received from it.
type chat struct {
	manager    *multicast.Manager
	name       string
	group      string
	port       int
	bufferSize int
	ignoreOwn  bool

	outMutex sync.Mutex
	out      io.Writer
}

func (c *chat) println(format string, args ...interface{}) {
	c.outMutex.Lock()
	defer c.outMutex.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

// run joins the group and relays until in is exhausted or ctx is canceled. The group is
// left before run returns; a failure to leave is printed but does not fail run.
func (c *chat) run(ctx context.Context, in io.Reader) error {
	if err := c.manager.Join(c.group, c.port); err != nil {
		return fmt.Errorf("cannot join group %v: %w", c.group, err)
	}
	defer func() {
		if err := c.manager.LeaveAll(); err != nil {
			c.println("cannot leave group %v: %v", c.group, err)
		}
		c.manager.Wait()
	}()
	err := c.manager.StartReceiver(c.group, c.bufferSize, c.ignoreOwn, func(msg *multicast.ReceivedMessage) {
		c.println("%s", msg.Payload)
	})
	if err != nil {
		return fmt.Errorf("cannot listen on group %v: %w", c.group, err)
	}
	group, _ := c.manager.LatestGroup()
	c.println("joined %v on port %v as %v", group, c.port, c.name)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case line := <-lines:
			text, ok := formatLine(c.name, line)
			if !ok {
				continue
			}
			if _, err := c.manager.Send([]byte(text), c.port); err != nil {
				c.println("cannot send: %v", err)
			}
		}
	}
}
