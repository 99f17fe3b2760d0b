package main

/*
	Type and flag definations

	This file contains all the type and flag definations
*/

import (
	"flag"
	"time"

	"imuslab.com/edgeproxy/mod/acme"
	"imuslab.com/edgeproxy/mod/database"
	"imuslab.com/edgeproxy/mod/dynamicproxy"
	"imuslab.com/edgeproxy/mod/edgeconf"
	"imuslab.com/edgeproxy/mod/info/logger"
	"imuslab.com/edgeproxy/mod/statistic"
	"imuslab.com/edgeproxy/mod/tlscert"
)

const (
	/* Build Constants */
	SYSTEM_NAME    = "EdgeProxy"
	SYSTEM_VERSION = "1.0.0"

	/* System Constants */
	LOG_PREFIX              = "ep"
	SELF_SIGNED_CERT_EXPIRY = 90 * 24 * time.Hour
)

/* System Startup Flags */
var (
	path_conf  = flag.String("conf", edgeconf.DefaultConfigPath, "Configuration file path, EDGE_* environment variables override its values")
	path_uuid  = flag.String("uuid", "./sys.uuid", "sys.uuid file path")
	showver    = flag.Bool("version", false, "Show version of this server")
	writeConf  = flag.Bool("sample", false, "Write a sample configuration to the -conf path and exit")
	selfSigned = flag.Bool("selfsign", false, "Generate a self-signed certificate at the configured cert paths and exit")
)

/* Global Variables and Handlers */
var (
	nodeUUID = "generic" //System uuid in uuidv4 format, load from sys.uuid on startup

	edgeConfig *edgeconf.Config //Loaded once at startup

	/*
		Handler Modules
	*/
	sysdb              *database.Database    //System database
	tlsCertManager     *tlscert.Manager      //TLS / SSL management
	statisticCollector *statistic.Collector  //Collecting request statistic
	statisticServer    *statistic.StatServer //Local /metrics listener
	acmeHandler        *acme.ACMEHandler     //Handler for ACME Certificate renew
	acmeAutoRenewer    *acme.AutoRenewer     //Handler for ACME auto renew ticking
	dynamicProxyRouter *dynamicproxy.Router  //The edge proxy router
	SystemWideLogger   *logger.Logger        //Logger for the edge proxy
)
