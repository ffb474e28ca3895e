package s3cas

import (
	"flag"
	"os"
	"strconv"

	"xdao.co/proofs/storage"
	"xdao.co/proofs/storage/casregistry"
)

var flagOpts Options

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "s3",
		Description: "S3-compatible bucket (minio, AWS, Wasabi)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagOpts.Endpoint, "s3-endpoint", "", "S3 endpoint host:port (for --backend=s3)")
			fs.StringVar(&flagOpts.Bucket, "s3-bucket", "", "S3 bucket (for --backend=s3)")
			fs.StringVar(&flagOpts.Prefix, "s3-prefix", "", "Object key prefix (for --backend=s3)")
			fs.BoolVar(&flagOpts.Insecure, "s3-insecure", false, "Disable TLS (for --backend=s3)")
		},
		Open: func() (storage.CAS, func() error, error) {
			opts := flagOpts
			// Credentials are never taken from flags.
			opts.AccessKey = os.Getenv("XDAO_S3_ACCESS_KEY")
			opts.SecretKey = os.Getenv("XDAO_S3_SECRET_KEY")
			return open(opts)
		},
		OpenConfig: func(cfg map[string]string) (storage.CAS, func() error, error) {
			insecure, _ := strconv.ParseBool(cfg["s3-insecure"])
			return open(Options{
				Endpoint:  cfg["s3-endpoint"],
				Bucket:    cfg["s3-bucket"],
				Prefix:    cfg["s3-prefix"],
				Insecure:  insecure,
				AccessKey: os.Getenv("XDAO_S3_ACCESS_KEY"),
				SecretKey: os.Getenv("XDAO_S3_SECRET_KEY"),
			})
		},
	})
}

func open(opts Options) (storage.CAS, func() error, error) {
	cas, err := Dial(opts)
	if err != nil {
		return nil, nil, err
	}
	return cas, nil, nil
}
