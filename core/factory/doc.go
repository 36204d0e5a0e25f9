// Package factory instantiates pluggable modules, such as metrics sinks, from
// configuration. A module is described by a type name and a map of raw
// settings which the registered factory decodes into its own struct.
//
//	reg := factory.NewRegistry[metrics.AllocationSink]()
//	_ = reg.Register("influx", func(conf map[string]any) (metrics.AllocationSink, error) {
//	    var c influxConf
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return newInflux(c)
//	})
//	sink, err := reg.Create(factory.ModuleConfig{Type: "influx", Conf: conf})
package factory
