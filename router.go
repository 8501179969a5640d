package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vendaro/vendaro/pkg/auth"
	"github.com/vendaro/vendaro/pkg/config"
	"github.com/vendaro/vendaro/pkg/db"
	"github.com/vendaro/vendaro/pkg/handler"
	"github.com/vendaro/vendaro/pkg/models"
	"github.com/vendaro/vendaro/pkg/service"
	"github.com/vendaro/vendaro/pkg/utils"
	"github.com/vendaro/vendaro/pkg/ws"
)

type Server struct {
	ginEngine *gin.Engine
	cfg       *config.AppConfig
	logger    *slog.Logger
	port      int
}

func NewServer(cfg *config.AppConfig) (*Server, error) {
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())

	// CORS middleware for browser clients of the back office.
	ginEngine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	server := &Server{
		ginEngine: ginEngine,
		cfg:       cfg,
		logger:    utils.GetLogger(),
		port:      0,
	}

	if err := server.SetupRoutes(); err != nil {
		return nil, err
	}
	return server, nil
}

func (s *Server) Start(ctx context.Context) error {
	// Read port from environment variable VENDARO_PORT, falling back to
	// the config file value if unset or invalid.
	port := s.cfg.Port()
	if v := os.Getenv("VENDARO_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 && p <= 65535 {
			port = p
		} else {
			s.logger.Warn("Invalid VENDARO_PORT value, falling back to config", "value", v)
		}
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host(), port)
	srv := &http.Server{Addr: addr, Handler: s.ginEngine}

	// Attempt to listen first; if the port is occupied return an error
	// immediately instead of failing inside Serve.
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	} else {
		s.port = port
	}
	s.logger.Info("Server listening", "addr", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	// Listen for context cancellation for graceful shutdown.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := <-errChan; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) SetupRoutes() error {
	gdb, err := db.Open(s.cfg.DatabasePath())
	if err != nil {
		return err
	}

	directory := auth.NewGormDirectory(gdb)
	resolver := auth.NewResolver(s.cfg.AuthSecret(), directory, time.Duration(s.cfg.TokenTTLMinutes())*time.Minute)

	supportService := service.NewSupportService(gdb, directory)
	if err := supportService.AutoMigrate(); err != nil {
		return err
	}

	hub := ws.NewHub(s.logger)
	supportService.SetBroadcaster(hub)

	gateway := ws.NewGateway(hub, resolver, supportService, s.logger)
	supportHandler := handler.NewSupportHandler(supportService, s.logger)

	// Real-time connection route
	// /ws/support
	s.ginEngine.GET("/ws/support", gateway.Handle)

	// API group
	// /api/support
	supportGroup := s.ginEngine.Group("/api/support")
	supportGroup.Use(auth.Middleware(resolver))
	{
		staffOnly := auth.RequireRole(models.RoleStaff)
		nonStaff := auth.RequireRole(models.RoleCustomer, models.RoleVendor)

		supportGroup.GET("/conversations", staffOnly, supportHandler.ListConversations)
		supportGroup.GET("/conversations/:id", staffOnly, supportHandler.GetConversation)
		supportGroup.PUT("/conversations/:id/read", staffOnly, supportHandler.MarkRead)

		supportGroup.POST("/tickets", supportHandler.CreateTicket)
		supportGroup.POST("/tickets/:id/messages", supportHandler.PostMessage)
		supportGroup.PUT("/tickets/:id/status", supportHandler.UpdateTicketStatus)
		supportGroup.PUT("/tickets/:id/assign", staffOnly, supportHandler.AssignTicket)

		supportGroup.POST("/sessions/start", nonStaff, supportHandler.StartSession)
		supportGroup.POST("/sessions/:id/messages", supportHandler.PostMessage)
		supportGroup.PUT("/sessions/:id/status", staffOnly, supportHandler.SetSessionStatus)
	}

	return nil
}
