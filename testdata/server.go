package server

import "fmt"

type Server struct {
	Host string
	Port int
}

func (s *Server) Address() string {
	host := s.Host
	port := s.Port
	return fmt.Sprintf("%s:%d", host, port)
}
