package node

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/0x6flab/namegenerator"
	"github.com/google/uuid"
)

type Role string

const (
	CoordinatorRole Role = "coordinator"
	WorkerRole      Role = "worker"
)

func (r Role) Valid() bool {
	return r == CoordinatorRole || r == WorkerRole
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("invalid role %q", s)
	}

	return r, nil
}

type Address struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func ParseAddress(hostport string) (Address, error) {
	host, p, err := net.SplitHostPort(hostport)
	if err != nil {
		return Address{}, err
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return Address{}, fmt.Errorf("invalid port %q: %w", p, err)
	}

	return Address{Host: host, Port: port}, nil
}

func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

type Metrics struct {
	TasksReceived  uint64 `json:"tasks_received"`
	TasksCompleted uint64 `json:"tasks_completed"`
	TasksFailed    uint64 `json:"tasks_failed"`
}

// Load is received minus completed. Failed tasks stay outstanding.
func (m Metrics) Load() uint64 {
	if m.TasksCompleted >= m.TasksReceived {
		return 0
	}

	return m.TasksReceived - m.TasksCompleted
}

type Node struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	Address   Address   `json:"address"`
	Metrics   Metrics   `json:"metrics"`
	LastSeen  time.Time `json:"last_seen"`
	StartedAt time.Time `json:"started_at"`
}

func (n Node) IsCoordinator() bool {
	return n.Role == CoordinatorRole
}

func (n Node) Uptime(now time.Time) time.Duration {
	if n.StartedAt.IsZero() {
		return 0
	}

	return now.Sub(n.StartedAt)
}

func (n Node) String() string {
	data, err := json.Marshal(n)
	if err != nil {
		return n.ID
	}

	return string(data)
}

type NodePage struct {
	Total uint64 `json:"total"`
	Nodes []Node `json:"nodes"`
}

// NewNode creates an identity for the local process. An empty name is
// replaced with a generated one.
func NewNode(name string, role Role, addr Address) Node {
	if name == "" {
		name = namegenerator.NewGenerator().Generate()
	}

	return Node{
		ID:        uuid.NewString(),
		Name:      name,
		Role:      role,
		Address:   addr,
		StartedAt: time.Now(),
	}
}
