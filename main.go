package main

/*
	EdgeProxy - TLS terminating edge proxy for a single local origin

	Plaintext traffic is answered with ACME challenge files or a
	redirect, encrypted traffic is forwarded to the origin with the
	forwarding headers, security headers and cache policy applied.
*/

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"imuslab.com/edgeproxy/mod/edgeconf"
	"imuslab.com/edgeproxy/mod/tlscert"
)

/* SIGTERM handler, do shutdown sequences before closing */
func SetupCloseHandler() {
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-c
		ShutdownSeq()
		os.Exit(0)
	}()
}

func main() {
	//Parse startup flags
	flag.Parse()

	/* Maintaince Function Modes */
	if *showver {
		fmt.Println(SYSTEM_NAME + " - Version " + SYSTEM_VERSION)
		os.Exit(0)
	}
	if *writeConf {
		if err := edgeconf.WriteSample(*path_conf); err != nil {
			log.Fatal(err)
		}
		fmt.Println("Sample configuration written to " + *path_conf)
		os.Exit(0)
	}

	cfg, err := loadEdgeConfig(*path_conf)
	if err != nil {
		log.Fatal(err)
	}
	edgeConfig = cfg

	if *selfSigned {
		err := tlscert.GenerateSelfSignedCertificate(cfg.Hostname, nil, cfg.TLS.CertFile, cfg.TLS.KeyFile, SELF_SIGNED_CERT_EXPIRY)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println("Self-signed certificate for " + cfg.Hostname + " written to " + cfg.TLS.CertFile)
		os.Exit(0)
	}

	/* Main EdgeProxy Routines */
	SetupCloseHandler()

	//Startup all modules, see start.go
	if err := startupSequence(); err != nil {
		if SystemWideLogger != nil {
			SystemWideLogger.PrintAndLog("main", "Startup failed", err)
		}
		ShutdownSeq()
		log.Fatal(err)
	}

	SystemWideLogger.Println(SYSTEM_NAME + " started. Forwarding https://" + cfg.Hostname + " to " + cfg.OriginURL().String())
	select {}
}

// A missing file at the default path is fine, defaults and
// environment overrides are enough to start
func loadEdgeConfig(path string) (*edgeconf.Config, error) {
	if path == edgeconf.DefaultConfigPath {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return edgeconf.LoadConfig("")
		}
	}
	return edgeconf.LoadConfig(path)
}
