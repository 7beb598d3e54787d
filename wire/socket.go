package wire

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"

	"github.com/pascal-fb-martin/houseportal/arena"
	"github.com/pascal-fb-martin/houseportal/logger"
)

// MaxDatagramSize bounds any single registration/gossip datagram.
const MaxDatagramSize = 1400

// DefaultPort is the registration port used when none is configured.
const DefaultPort = 70

// recvBufferSize is the minimum socket receive buffer requested at bind
// time, matching spec.md §4.1's "≥256 KiB" requirement.
const recvBufferSize = 256 * 1024

// Packet is one datagram read off a Socket, with the arena-backed buffer
// still owned by the reader: callers must call Socket.Release(p) once
// done with it.
type Packet struct {
	Data []byte
	Addr *net.UDPAddr
}

// Socket wraps a bound UDP connection along with the buffer arena used
// to avoid per-datagram allocation, generalizing the teacher's
// remoteNode.Listen/ReadFromSocket pair.
type Socket struct {
	conn  *net.UDPConn
	pool  arena.Arena
	local bool
}

// Open binds a UDP socket on port. When local is true, binding is
// restricted to loopback; otherwise the socket binds the unspecified
// address, which receives broadcast datagrams on every interface.
func Open(port int, local bool) (*Socket, error) {
	addr := ""
	if local {
		addr = "127.0.0.1"
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP(addr), Port: port})
	if err != nil {
		return nil, fmt.Errorf("wire: listen on port %d: %w", port, err)
	}
	if err := conn.SetReadBuffer(recvBufferSize); err != nil {
		conn.Close()
		return nil, fmt.Errorf("wire: set read buffer: %w", err)
	}
	if !local {
		pconn := ipv4.NewPacketConn(conn)
		// Broadcast reception comes from the unspecified-address bind
		// itself. SetControlMessage(FlagDst) only asks the kernel to
		// report each datagram's destination address; ReadLoop does not
		// read that control data.
		_ = pconn.SetControlMessage(ipv4.FlagDst, true)
	}
	return &Socket{
		conn: conn,
		// One spare byte per buffer lets ReadLoop detect datagrams
		// longer than MaxDatagramSize.
		pool: arena.NewArena(MaxDatagramSize+1, 8),
	}, nil
}

// LocalPort returns the port actually bound, useful when the socket was
// opened with port 0.
func (s *Socket) LocalPort() int {
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

// Close releases the underlying UDP connection.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// ReadLoop reads datagrams until stop is closed, handing each one to out.
// The caller must call Release on every received Packet. Grounded on
// remoteNode.ReadFromSocket, generalized to this module's wire format.
func (s *Socket) ReadLoop(out chan<- Packet, stop <-chan struct{}, log logger.DebugLogger) {
	for {
		b := s.pool.Pop()
		n, addr, err := s.conn.ReadFromUDP(b)
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			log.Debugf("wire: read error: %v", err)
			s.pool.Push(b)
			continue
		}
		totalRecv.Add(1)
		if n > MaxDatagramSize {
			totalOversizedRecv.Add(1)
			log.Warnf("wire: datagram exceeds %d bytes, truncating", MaxDatagramSize)
			n = MaxDatagramSize
		}
		select {
		case out <- Packet{Data: b[:n], Addr: addr}:
		case <-stop:
			s.pool.Push(b)
			return
		}
	}
}

// Release returns a packet's buffer to the arena once the caller is done
// with its contents.
func (s *Socket) Release(p Packet) {
	s.pool.Push(p.Data)
}

// Broadcast sends payload to the local subnet's limited broadcast
// address on the given port.
func (s *Socket) Broadcast(port int, payload string) error {
	addr := &net.UDPAddr{IP: net.IPv4bcast, Port: port}
	_, err := s.conn.WriteToUDP([]byte(payload), addr)
	return err
}

// Unicast resolves host and sends payload to it directly.
func (s *Socket) Unicast(hostPort string, payload string) error {
	addr, err := net.ResolveUDPAddr("udp4", hostPort)
	if err != nil {
		return fmt.Errorf("wire: resolve %s: %w", hostPort, err)
	}
	_, err = s.conn.WriteToUDP([]byte(payload), addr)
	return err
}
