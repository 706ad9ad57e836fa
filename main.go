package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"i4.energy/across/simcom/modem"
)

func main() {
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port to connect to the modem")
	flag.Int("baud-rate", 115200, "Baud rate to run the modem at")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("apn", "", "Access point name; GPRS is brought up at startup when set")
	flag.String("apn-user", "", "Access point user name")
	flag.String("apn-password", "", "Access point password")
	listPorts := flag.Bool("list-ports", false, "List serial ports and exit")
	flag.Parse()

	if *listPorts {
		ports, err := modem.ListSerialPorts()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: config.Level()}))
	modemLogger := logger.With("component", "modem")

	modemConfig, err := modem.NewConfigBuilder().
		WithLogger(modemLogger).
		WithBaudRate(config.BaudRate).
		WithATTimeout(5 * time.Second).
		WithInitTimeout(30 * time.Second).
		WithNotificationHandler(func(line string) {
			LogNotification(modemLogger, line)
		}).
		WithDialer(modem.SerialDialer{
			PortName: config.SerialPort,
		}).
		Build()
	if err != nil {
		logger.Error("Failed to create modem config", "error", err)
		os.Exit(1)
	}

	m, err := modem.New(context.Background(), modemConfig)
	if err != nil {
		logger.Error("Failed to create modem", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting SIMCOM daemon", "serial_port", config.SerialPort, "baud_rate", m.BaudRate())

	server := NewServer(logger.With("component", "server"), m)

	if config.APN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		ip, err := server.BringUpGprs(ctx, config.APN, config.APNUser, config.APNPassword)
		cancel()
		if err != nil {
			logger.Error("Failed to bring up GPRS", "error", err, "apn", config.APN)
		} else {
			logger.Info("GPRS up", "apn", config.APN, "ip", ip)
		}
	}

	httpServer := &http.Server{
		Addr:    config.BindAddress,
		Handler: server,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
	}

	logger.Info("Closing modem connection")
	if err := server.Close(ctx); err != nil {
		logger.Error("Failed to close modem", "error", err)
		os.Exit(1)
	}
}
