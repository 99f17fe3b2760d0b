package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"imuslab.com/edgeproxy/mod/acme"
	"imuslab.com/edgeproxy/mod/database"
	"imuslab.com/edgeproxy/mod/database/dbinc"
	"imuslab.com/edgeproxy/mod/dynamicproxy"
	"imuslab.com/edgeproxy/mod/dynamicproxy/compress"
	"imuslab.com/edgeproxy/mod/info/logger"
	"imuslab.com/edgeproxy/mod/statistic"
	"imuslab.com/edgeproxy/mod/tlscert"
	"imuslab.com/edgeproxy/mod/utils"
)

/*
	Startup Sequence

	This function starts the startup sequence of all
	required modules
*/

func startupSequence() error {
	cfg := edgeConfig

	//Create a system wide logger
	l, err := logger.NewLogger(LOG_PREFIX, cfg.Log.Folder)
	if err != nil {
		return fmt.Errorf("unable to create logger: %w", err)
	}
	SystemWideLogger = l
	if err := l.SetFormat(cfg.Log.Format); err != nil {
		return err
	}
	if err := l.SetLevel(cfg.Log.Level); err != nil {
		return err
	}
	l.TrafficEnabled = cfg.Log.Traffic

	//Read or create the system uuid
	nodeUUID, err = loadOrCreateNodeUUID(*path_uuid)
	if err != nil {
		return fmt.Errorf("unable to read system uuid: %w", err)
	}

	//Create database
	backendType, _ := dbinc.ParseBackendType(cfg.Database.Backend)
	db, err := database.NewDatabase(cfg.Database.Path, backendType)
	if err != nil {
		return fmt.Errorf("unable to open database: %w", err)
	}
	sysdb = db
	SystemWideLogger.PrintAndLog("database", "Using "+db.BackendType.String()+" database at "+cfg.Database.Path, nil)

	//Create a statistic collector
	if cfg.Stats.Enabled {
		statisticCollector, err = statistic.NewStatisticCollector(statistic.CollectorOption{
			Database:     sysdb,
			SaveInterval: cfg.Stats.SaveInterval,
			Logger:       SystemWideLogger,
		})
		if err != nil {
			return fmt.Errorf("unable to create statistic collector: %w", err)
		}
	}

	//Create a TLS certificate manager. The pair may be missing until
	//the first issuance when the built-in ACME client is used
	tlsCertManager, err = tlscert.NewManager(&tlscert.Options{
		CertFile:       cfg.TLS.CertFile,
		KeyFile:        cfg.TLS.KeyFile,
		CertStore:      cfg.TLS.CertStore,
		ReloadInterval: cfg.TLS.ReloadInterval,
		AllowMissing:   cfg.ACME.Enabled,
		Logger:         SystemWideLogger,
	})
	if err != nil {
		return fmt.Errorf("unable to load certificate: %w", err)
	}
	if err := tlsCertManager.StartWatching(); err != nil {
		return err
	}
	if statisticCollector != nil {
		if err := statisticCollector.Metrics.RegisterCertificateExpiry(tlsCertManager.DefaultCertExpiry); err != nil {
			return err
		}
	}

	//Create ACME client and auto renewer
	if cfg.ACME.Enabled {
		acmeHandler = acme.NewACME(&acme.Options{
			Webroot:  cfg.ACME.Webroot,
			Email:    cfg.ACME.Email,
			CAURL:    cfg.ACME.CAURL,
			CertFile: cfg.TLS.CertFile,
			KeyFile:  cfg.TLS.KeyFile,
			Database: sysdb,
			Logger:   SystemWideLogger,
		})
		acmeAutoRenewer, err = acme.NewAutoRenewer(cfg.ACME.RenewSchedule, cfg.ACME.EarlyRenewDays, cfg.TLS.CertFile, []string{cfg.Hostname}, acmeHandler, SystemWideLogger)
		if err != nil {
			return err
		}
		acmeAutoRenewer.OnRenewed = func() {
			if err := tlsCertManager.Reload(); err != nil {
				SystemWideLogger.PrintAndLog("cert-renew", "Renewed certificate could not be loaded", err)
			}
		}
		if err := acmeAutoRenewer.Start(); err != nil {
			return err
		}
	}

	//Create the edge proxy router
	var compressor *compress.Compressor
	if cfg.Compression.Enabled {
		compressor, err = compress.NewCompressor(compress.Options{
			Level:   cfg.Compression.Level,
			MinSize: cfg.Compression.MinSize,
		})
		if err != nil {
			return err
		}
	}

	dynamicProxyRouter, err = dynamicproxy.NewDynamicProxy(dynamicproxy.RouterOption{
		HostUUID:           nodeUUID,
		Hostname:           cfg.Hostname,
		HTTPListen:         cfg.Listen.HTTP,
		HTTPSListen:        cfg.Listen.HTTPS,
		HTTPSPort:          cfg.HTTPSPort(),
		ProxyProtocol:      cfg.Listen.ProxyProtocol,
		TLSMinVersion:      cfg.TLSMinVersion(),
		Origin:             cfg.OriginURL(),
		DialTimeout:        cfg.Origin.DialTimeout,
		ResponseTimeout:    cfg.Origin.ResponseTimeout,
		FlushInterval:      cfg.Origin.FlushInterval,
		TlsManager:         tlsCertManager,
		ChallengeHandler:   acme.NewChallengeHandler(cfg.ACME.Webroot),
		Compressor:         compressor,
		StatisticCollector: statisticCollector,
		Logger:             SystemWideLogger,
	})
	if err != nil {
		return err
	}
	if err := dynamicProxyRouter.StartProxyService(); err != nil {
		return fmt.Errorf("unable to start edge proxy: %w", err)
	}

	//Expose the metrics on the local stats listener
	if statisticCollector != nil && cfg.Stats.Listen != "" {
		statisticServer, err = statisticCollector.StartServer(cfg.Stats.Listen)
		if err != nil {
			return fmt.Errorf("unable to start stats listener: %w", err)
		}
		SystemWideLogger.PrintAndLog("statistic", "Metrics available at http://"+statisticServer.Addr()+"/metrics", nil)
	}
	return nil
}

// The node UUID identify this instance in the X-Forwarded-Server header
func loadOrCreateNodeUUID(uuidRecord string) (string, error) {
	if !utils.FileExists(uuidRecord) {
		newSystemUUID := uuid.New().String()
		if err := os.MkdirAll(filepath.Dir(uuidRecord), 0775); err != nil {
			return "", err
		}
		if err := os.WriteFile(uuidRecord, []byte(newSystemUUID), 0644); err != nil {
			return "", err
		}
	}
	uuidBytes, err := os.ReadFile(uuidRecord)
	if err != nil {
		return "", err
	}
	parsed, err := uuid.Parse(strings.TrimSpace(string(uuidBytes)))
	if err != nil {
		return "", fmt.Errorf("malformed uuid in %s: %w", uuidRecord, err)
	}
	return parsed.String(), nil
}

/* Shutdown Sequence, close every module in reverse start order */
func ShutdownSeq() {
	if SystemWideLogger != nil {
		SystemWideLogger.Println("Shutting down " + SYSTEM_NAME)
	}
	if dynamicProxyRouter != nil && dynamicProxyRouter.Running {
		if err := dynamicProxyRouter.StopProxyService(); err != nil {
			SystemWideLogger.PrintAndLog("main", "Edge proxy did not stop cleanly", err)
		}
	}
	if statisticServer != nil {
		statisticServer.Close()
	}
	if acmeAutoRenewer != nil {
		acmeAutoRenewer.Close()
	}
	if tlsCertManager != nil {
		tlsCertManager.Close()
	}
	if statisticCollector != nil {
		statisticCollector.Close()
	}
	if sysdb != nil {
		sysdb.Close()
	}
	if SystemWideLogger != nil {
		SystemWideLogger.Close()
	}
}
